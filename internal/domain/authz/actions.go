package authz

// Action constants. These map 1:1 with gateway facade operations.
type Action string

const (
	ActionInspectionList   Action = "inspection:list"
	ActionInspectionRead   Action = "inspection:read"
	ActionInspectionUpdate Action = "inspection:update"
	ActionRoomRead         Action = "room:read"
	ActionComponentRead    Action = "component:read"
	ActionComponentUpdate  Action = "component:update"
	ActionIssueRead        Action = "issue:read"
	ActionIssueCreate      Action = "issue:create"
	ActionIssueResolve     Action = "issue:resolve"
	ActionAnalysisTrigger  Action = "analysis:trigger"
	ActionReportGenerate   Action = "report:generate"
	ActionReportFinalize   Action = "report:finalize"
	ActionJobRead          Action = "job:read"
	ActionMediaUpload      Action = "media:upload"
	ActionChatSend         Action = "chat:send"
)

// mutatingActions are gated on the finalization lock: once the owning
// inspection is finalized they are refused outright.
var mutatingActions = map[Action]bool{
	ActionInspectionUpdate: true,
	ActionComponentUpdate:  true,
	ActionIssueCreate:      true,
	ActionIssueResolve:     true,
	ActionAnalysisTrigger:  true,
	ActionReportGenerate:   true,
	ActionReportFinalize:   true,
	ActionMediaUpload:      true,
}

// rolePermissions is the static action -> allowed roles table. Unknown
// actions are rejected (fail-closed). Admin can do everything including
// finalize; Inspector everything except finalize; Viewer reads and chat;
// SystemService only the internal writes the job worker performs.
var rolePermissions = map[Action][]Role{
	ActionInspectionList:   {RoleAdmin, RoleInspector, RoleViewer},
	ActionInspectionRead:   {RoleAdmin, RoleInspector, RoleViewer},
	ActionInspectionUpdate: {RoleAdmin, RoleInspector},
	ActionRoomRead:         {RoleAdmin, RoleInspector, RoleViewer},
	ActionComponentRead:    {RoleAdmin, RoleInspector, RoleViewer},
	ActionComponentUpdate:  {RoleAdmin, RoleInspector},
	ActionIssueRead:        {RoleAdmin, RoleInspector, RoleViewer},
	ActionIssueCreate:      {RoleAdmin, RoleInspector, RoleSystemService},
	ActionIssueResolve:     {RoleAdmin, RoleInspector},
	ActionAnalysisTrigger:  {RoleAdmin, RoleInspector},
	ActionReportGenerate:   {RoleAdmin, RoleInspector},
	ActionReportFinalize:   {RoleAdmin},
	ActionJobRead:          {RoleAdmin, RoleInspector, RoleViewer, RoleSystemService},
	ActionMediaUpload:      {RoleAdmin, RoleInspector},
	ActionChatSend:         {RoleAdmin, RoleInspector, RoleViewer},
}

// RoleAllowed reports whether the permission table lists role for action.
func RoleAllowed(action Action, role Role) bool {
	for _, r := range rolePermissions[action] {
		if r == role {
			return true
		}
	}
	return false
}
