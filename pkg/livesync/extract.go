package livesync

// Static reports every session of a kind with the same topic and
// properties.
func Static(topic string, props Properties) Extractor {
	return func(Session) (string, Properties, error) {
		return topic, props.Clone(), nil
	}
}

// TopicFunc derives the topic from the session and reports fixed
// properties.
func TopicFunc(topic func(Session) string, props Properties) Extractor {
	return func(s Session) (string, Properties, error) {
		return topic(s), props.Clone(), nil
	}
}

// PropertiesFunc reports a fixed topic and derives the properties from
// the session.
func PropertiesFunc(topic string, props func(Session) Properties) Extractor {
	return func(s Session) (string, Properties, error) {
		return topic, props(s), nil
	}
}

// Funcs derives both the topic and the properties from the session.
func Funcs(topic func(Session) string, props func(Session) Properties) Extractor {
	return func(s Session) (string, Properties, error) {
		return topic(s), props(s), nil
	}
}

// Extract adapts a function that derives both values at once and may
// fail. A failure skips the pass and leaves the record untouched.
func Extract(fn func(Session) (string, Properties, error)) Extractor {
	return Extractor(fn)
}
