package embeddings

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/logger"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func TestHashService(t *testing.T) {
	service := NewHashService(ModelConfig{}, testLogger())
	defer service.Close()
	ctx := context.Background()

	t.Run("Deterministic", func(t *testing.T) {
		a, err := service.GenerateEmbedding(ctx, "wat is de maximale dosering amoxicilline")
		if err != nil {
			t.Fatalf("GenerateEmbedding: %v", err)
		}
		b, err := service.GenerateEmbedding(ctx, "wat is de maximale dosering amoxicilline")
		if err != nil {
			t.Fatalf("GenerateEmbedding: %v", err)
		}
		for i := range a.Embedding {
			if a.Embedding[i] != b.Embedding[i] {
				t.Fatalf("embedding differs at dim %d", i)
			}
		}
	})

	t.Run("DistinctTexts", func(t *testing.T) {
		a, _ := service.GenerateEmbedding(ctx, "dosering amoxicilline")
		b, _ := service.GenerateEmbedding(ctx, "verwijzing cardiologie")
		same := true
		for i := range a.Embedding {
			if a.Embedding[i] != b.Embedding[i] {
				same = false
				break
			}
		}
		if same {
			t.Error("distinct texts produced identical embeddings")
		}
	})

	t.Run("Dimensions", func(t *testing.T) {
		result, err := service.GenerateEmbedding(ctx, "test")
		if err != nil {
			t.Fatalf("GenerateEmbedding: %v", err)
		}
		if len(result.Embedding) != EmbeddingDimensions {
			t.Errorf("expected %d dimensions, got %d", EmbeddingDimensions, len(result.Embedding))
		}
	})

	t.Run("UnitNorm", func(t *testing.T) {
		result, _ := service.GenerateEmbedding(ctx, "some clinical question")
		var sum float64
		for _, v := range result.Embedding {
			sum += float64(v) * float64(v)
		}
		if math.Abs(math.Sqrt(sum)-1.0) > 1e-5 {
			t.Errorf("expected unit norm, got %f", math.Sqrt(sum))
		}
	})

	t.Run("EmptyTextRejected", func(t *testing.T) {
		if _, err := service.GenerateEmbedding(ctx, "   "); err == nil {
			t.Error("expected error for blank text")
		}
	})

	t.Run("BatchSkipsEmptyEntries", func(t *testing.T) {
		result, err := service.GenerateBatchEmbeddings(ctx, []string{"eerste tekst", "", "derde tekst"})
		if err != nil {
			t.Fatalf("GenerateBatchEmbeddings: %v", err)
		}
		if result.Successful != 2 || result.Failed != 1 {
			t.Errorf("expected 2 successful / 1 failed, got %d / %d", result.Successful, result.Failed)
		}
		if result.Embeddings[1] != nil {
			t.Error("expected nil embedding for empty entry")
		}
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		result, err := service.GenerateBatchEmbeddings(ctx, nil)
		if err != nil {
			t.Fatalf("GenerateBatchEmbeddings: %v", err)
		}
		if len(result.Embeddings) != 0 {
			t.Errorf("expected no embeddings, got %d", len(result.Embeddings))
		}
	})
}

func TestNormalizeEmbedding(t *testing.T) {
	t.Run("ZeroVectorUnchanged", func(t *testing.T) {
		vec := make([]float32, 4)
		out := NormalizeEmbedding(vec)
		for _, v := range out {
			if v != 0 {
				t.Error("zero vector should stay zero")
			}
		}
	})

	t.Run("ScalesToUnit", func(t *testing.T) {
		vec := []float32{3, 4}
		out := NormalizeEmbedding(vec)
		if math.Abs(float64(out[0])-0.6) > 1e-6 || math.Abs(float64(out[1])-0.8) > 1e-6 {
			t.Errorf("unexpected normalization: %v", out)
		}
	})
}

func TestTokenizer(t *testing.T) {
	t.Run("SpecialTokensAndMask", func(t *testing.T) {
		tok := NewTokenizer(16)
		input := tok.Tokenize("dosering bij nierinsufficientie")
		if input.InputIDs[0] != clsTokenID {
			t.Errorf("expected [CLS] first, got %d", input.InputIDs[0])
		}
		if input.InputIDs[4] != sepTokenID {
			t.Errorf("expected [SEP] after 3 tokens, got %d", input.InputIDs[4])
		}
		if input.Length != 5 {
			t.Errorf("expected length 5, got %d", input.Length)
		}
		for i, m := range input.AttentionMask {
			want := int32(0)
			if i < 5 {
				want = 1
			}
			if m != want {
				t.Errorf("attention mask wrong at %d: got %d want %d", i, m, want)
			}
		}
	})

	t.Run("Truncation", func(t *testing.T) {
		tok := NewTokenizer(4)
		input := tok.Tokenize("een twee drie vier vijf")
		if !input.Truncated {
			t.Error("expected truncation flag")
		}
		if input.Length != 4 {
			t.Errorf("expected length 4, got %d", input.Length)
		}
	})

	t.Run("StableIDs", func(t *testing.T) {
		tok := NewTokenizer(8)
		a := tok.Tokenize("amoxicilline")
		b := tok.Tokenize("amoxicilline")
		if a.InputIDs[1] != b.InputIDs[1] {
			t.Error("token IDs not stable across calls")
		}
		if a.InputIDs[1] < tokenIDOffset {
			t.Errorf("token ID %d collides with special token range", a.InputIDs[1])
		}
	})
}

func TestFactory(t *testing.T) {
	factory := NewFactory(testLogger())

	t.Run("DefaultsToHash", func(t *testing.T) {
		service, err := factory.CreateService(ServiceConfig{Type: HashEmbedding})
		if err != nil {
			t.Fatalf("CreateService: %v", err)
		}
		defer service.Close()
		if service.GetStats().ServiceType != "hash" {
			t.Errorf("expected hash service, got %s", service.GetStats().ServiceType)
		}
	})

	t.Run("UnknownTypeRejected", func(t *testing.T) {
		if _, err := factory.CreateService(ServiceConfig{Type: "quantum"}); err == nil {
			t.Error("expected error for unknown service type")
		}
	})

	t.Run("TransformerRequiresModelPath", func(t *testing.T) {
		err := ValidateServiceConfig(ServiceConfig{Type: TransformerEmbedding})
		if err == nil {
			t.Error("expected validation error without model_path")
		}
	})
}
