package document

// EventName names a document event. Lifecycle events double as hook names
// in a Behavior.
type EventName string

// Document events.
const (
	EventChange       EventName = "change"
	EventBeforeSync   EventName = "beforeSync"
	EventAfterSync    EventName = "afterSync"
	EventBeforeInsert EventName = "beforeInsert"
	EventAfterInsert  EventName = "afterInsert"
	EventBeforeUpdate EventName = "beforeUpdate"
	EventAfterUpdate  EventName = "afterUpdate"
	EventBeforeSubmit EventName = "beforeSubmit"
	EventAfterSubmit  EventName = "afterSubmit"
	EventBeforeCancel EventName = "beforeCancel"
	EventAfterCancel  EventName = "afterCancel"
	EventBeforeDelete EventName = "beforeDelete"
	EventAfterDelete  EventName = "afterDelete"
	EventBeforeRename EventName = "beforeRename"
	EventAfterRename  EventName = "afterRename"
)

// Event is delivered to handlers registered with On.
type Event struct {
	Name EventName
	Doc  *Doc
	// Field and Value are set for change events.
	Field string
	Value any
}

// Handler receives events. Handlers run synchronously in registration order.
type Handler func(Event)

// emitter is a minimal observer registry.
type emitter struct {
	handlers map[EventName][]Handler
}

func (e *emitter) on(name EventName, h Handler) {
	if e.handlers == nil {
		e.handlers = make(map[EventName][]Handler)
	}
	e.handlers[name] = append(e.handlers[name], h)
}

func (e *emitter) trigger(ev Event) {
	for _, h := range e.handlers[ev.Name] {
		h(ev)
	}
}
