package bpmn20

// TEvent is the common base of the supported events, only none start and none end events are executed
type TEvent struct {
	TFlowNode
}

type TStartEvent struct {
	TEvent
}

func (TStartEvent) GetType() ElementType { return ElementTypeStartEvent }

type TEndEvent struct {
	TEvent
}

func (TEndEvent) GetType() ElementType { return ElementTypeEndEvent }
