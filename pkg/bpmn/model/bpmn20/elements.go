package bpmn20

type ElementType string

const (
	ElementTypeStartEvent   ElementType = "START_EVENT"
	ElementTypeEndEvent     ElementType = "END_EVENT"
	ElementTypeTask         ElementType = "TASK"
	ElementTypeUserTask     ElementType = "USER_TASK"
	ElementTypeSequenceFlow ElementType = "SEQUENCE_FLOW"

	// ElementTypeMultiInstanceBody is never parsed from XML, it labels the runtime
	// element instance which groups the children of a multi-instance activity.
	ElementTypeMultiInstanceBody ElementType = "MULTI_INSTANCE_BODY"
)

// ActivityElement is a flow node which may carry multi-instance loop characteristics
type ActivityElement interface {
	FlowNode
	GetMultiInstance() *TMultiInstanceLoopCharacteristics
}

type UserTaskElement interface {
	ActivityElement
	GetAssignmentAssignee() string
	GetAssignmentCandidateGroups() []string
}
