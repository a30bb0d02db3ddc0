package mutation

// Publisher handles event publishing after commit.
type Publisher interface {
	// PublishAll is called by Context.Commit after a successful commit.
	PublishAll(events []Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(events []Event)

func (f PublisherFunc) PublishAll(events []Event) {
	f(events)
}
