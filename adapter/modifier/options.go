package modifier

import "github.com/vinicius-lino-figueiredo/godm/domain"

// WithComparer sets the comparer used by $addToSet, $min and $max.
func WithComparer(c domain.Comparer) Option {
	return func(m *Modifier) {
		m.comp = c
	}
}

// WithFieldNavigator sets the navigator used to resolve dotted fields.
func WithFieldNavigator(f domain.FieldNavigator) Option {
	return func(m *Modifier) {
		m.fieldNavigator = f
	}
}

// WithMatcher sets the matcher used by $pull.
func WithMatcher(mt domain.Matcher) Option {
	return func(m *Modifier) {
		m.matcher = mt
	}
}

// WithTimeGetter sets the clock used by $currentDate.
func WithTimeGetter(t domain.TimeGetter) Option {
	return func(m *Modifier) {
		m.timeGetter = t
	}
}

// Option configures modifier behavior through the functional options pattern.
type Option func(*Modifier)
