package pipeline

import (
	"context"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks . SourceAdapter,TextGenerator,ArtifactWriter,ArtifactReader

// RawFinancialRecord is the provider-native record as decoded JSON. Numbers
// are expected as json.Number so that amounts keep their decimal text.
type RawFinancialRecord = map[string]interface{}

// SourceAdapter obtains a raw record from a data provider.
type SourceAdapter interface {
	// Name identifies the source in run keys and artifact names ("mock", "plaid", "file").
	Name() string
	Fetch(ctx context.Context) (RawFinancialRecord, error)
}

// TextGenerator is the text-completion capability of a hosted model.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ArtifactWriter persists a named artifact. Writing an existing name replaces it.
type ArtifactWriter interface {
	WriteArtifact(ctx context.Context, name string, payload []byte) error
}

// ArtifactReader loads a previously persisted artifact.
type ArtifactReader interface {
	ReadArtifact(ctx context.Context, name string) ([]byte, error)
}
