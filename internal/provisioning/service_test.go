package provisioning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorgate/vectorgate/internal/ratelimit"
)

func TestSetVectorStoreRejectsInvalidTenantCode(t *testing.T) {
	svc := &Service{}

	_, err := svc.SetVectorStore(context.Background(), SetVectorStoreRequest{
		TenantCode: "Not-Valid!",
	})
	require.Error(t, err, "expected an error for an invalid tenant code")
}

func TestGenerateSchemaRejectsInvalidTenantCode(t *testing.T) {
	svc := &Service{}

	_, err := svc.GenerateSchema(context.Background(), GenerateSchemaRequest{
		TenantCode: "Not-Valid!",
		ModelName:  "text-embed-3",
		Dimension:  768,
	})
	require.Error(t, err, "expected an error for an invalid tenant code")
}

func TestGenerateSchemaRejectsInvalidModelName(t *testing.T) {
	svc := &Service{}

	_, err := svc.GenerateSchema(context.Background(), GenerateSchemaRequest{
		TenantCode: "acme",
		ModelName:  "",
		Dimension:  768,
	})
	require.Error(t, err, "expected an error for an empty model name")
}

func TestGenerateSchemaRejectsBadDimension(t *testing.T) {
	svc := &Service{}

	for _, dim := range []int{0, -1, 4097} {
		_, err := svc.GenerateSchema(context.Background(), GenerateSchemaRequest{
			TenantCode: "acme",
			ModelName:  "text-embed-3",
			Dimension:  dim,
		})
		assert.Errorf(t, err, "dimension %d: expected an error", dim)
	}
}

func TestCollectionSchemaIncludesDenseAndSparseFields(t *testing.T) {
	schema := collectionSchema("vector_store_schema_for_acme_text_embed_3", 384, 65535)

	var sawDense, sawSparse, sawPrimary bool
	for _, f := range schema.Fields {
		switch f.Name {
		case "flouds_vector":
			sawDense = true
			assert.Equal(t, 384, f.Dimension)
		case "sparse":
			sawSparse = true
		case "flouds_vector_id":
			sawPrimary = f.IsPrimaryKey
		}
	}

	require.True(t, sawDense, "schema missing dense field")
	require.True(t, sawSparse, "schema missing sparse field")
	require.True(t, sawPrimary, "schema missing primary key field")
}

func TestSanitizeCollectionComponentReplacesUnsafeChars(t *testing.T) {
	assert.Equal(t, "text_embedding_3_small", sanitizeCollectionComponent("text-embedding.3-small"))
	assert.Equal(t, "plain", sanitizeCollectionComponent("PLAIN"))
}

func TestGeneratePasswordIsRandomAndNonEmpty(t *testing.T) {
	a, err := generatePassword()
	require.NoError(t, err)
	b, err := generatePassword()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEmpty(t, b)
	assert.NotEqual(t, a, b, "expected two distinct generated passwords")
	assert.GreaterOrEqual(t, len(a), 12, "password must meet the minimum length policy")
}

func TestSetVectorStoreRequestCarriesTier(t *testing.T) {
	req := SetVectorStoreRequest{TenantCode: "acme", Tier: ratelimit.TierPremium}
	assert.Equal(t, ratelimit.TierPremium, req.Tier)
}
