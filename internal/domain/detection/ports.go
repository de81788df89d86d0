package detection

import "context"

// Classifier is the remote entity-classification capability. Implementations
// must be safe for concurrent use; every file worker shares one instance.
type Classifier interface {
	// Classify returns the entities found in text. Offsets in the returned
	// entities are byte offsets into text.
	Classify(ctx context.Context, text, languageCode string) ([]Entity, error)
}

// SecretsEngine is an optional whole-file detector that contributes pattern
// findings next to the configured regex rules.
type SecretsEngine interface {
	Detect(ctx context.Context, content string) []Finding
}
