package preprocess

import (
	"go.uber.org/zap"

	"github.com/maslennikov-ig/MC-2-sub003/schema"
)

// Preprocessor normalizes every enum-typed value of a decoded document against
// its contract. It performs no I/O.
type Preprocessor struct {
	logger *zap.Logger
}

// New creates a Preprocessor. A nil logger disables substitution logging.
func New(logger *zap.Logger) *Preprocessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preprocessor{logger: logger.With(zap.String("component", "preprocess"))}
}

// Apply returns a normalized deep copy of data together with the changes that
// were made. data itself is never modified. Every substitution is logged with
// its before and after value.
func (p *Preprocessor) Apply(data any, c *schema.Contract, synonyms Synonyms) (any, []Change) {
	out := schema.Clone(data)
	var changes []Change
	out = p.walk(out, c, "", synonyms, &changes)
	return out, changes
}

func (p *Preprocessor) walk(v any, c *schema.Contract, path string, synonyms Synonyms, changes *[]Change) any {
	if c == nil || v == nil {
		return v
	}
	switch c.Kind {
	case schema.KindEnum:
		s, ok := v.(string)
		if !ok {
			return v
		}
		ch := Normalize(s, schema.FieldName(path), c.Enum, synonyms)
		if !ch.Changed {
			return v
		}
		ch.Path = path
		*changes = append(*changes, ch)
		p.logger.Info("enum value normalized",
			zap.String("path", path),
			zap.String("before", ch.Before),
			zap.String("after", ch.Value),
			zap.String("rule", string(ch.Rule)),
		)
		return ch.Value
	case schema.KindObject:
		m, ok := v.(map[string]any)
		if !ok {
			return v
		}
		for _, name := range c.PropertyNames() {
			if val, present := m[name]; present {
				m[name] = p.walk(val, c.Properties[name], schema.JoinKey(path, name), synonyms, changes)
			}
		}
		return m
	case schema.KindArray:
		arr, ok := v.([]any)
		if !ok {
			return v
		}
		for i := range arr {
			arr[i] = p.walk(arr[i], c.Items, schema.JoinIndex(path, i), synonyms, changes)
		}
		return arr
	default:
		return v
	}
}
