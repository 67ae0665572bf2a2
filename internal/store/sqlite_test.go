package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDocs() []Document {
	return []Document{
		{
			Meta:    DocumentMeta{ID: "234", Title: "故意伤害罪", ArticleNo: 234},
			Content: "故意伤害他人身体的，处三年以下有期徒刑、拘役或者管制。",
			Vector:  []float32{0.1, 0.2, 0.3},
		},
		{
			Meta:    DocumentMeta{ID: "264", Title: "盗窃罪", ArticleNo: 264},
			Content: "盗窃公私财物，数额较大的，处三年以下有期徒刑。",
			Vector:  []float32{0.4, 0.5, 0.6},
		},
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.PutDocuments(ctx, CategoryArticle, seedDocs()))

	matrix, err := s.GetVectors(ctx, CategoryArticle)
	require.NoError(t, err)
	require.Equal(t, 2, matrix.Len())
	assert.Equal(t, []string{"law_000234", "law_000264"}, matrix.IDs)
	assert.InDelta(t, 0.1, float64(matrix.Vectors[0][0]), 1e-6)

	metas, err := s.GetMetadata(ctx, CategoryArticle)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	// Row order matches the vector matrix.
	assert.Equal(t, "故意伤害罪", metas[0].Title)
	assert.Equal(t, 264, metas[1].ArticleNo)

	content, err := s.GetContent(ctx, CategoryArticle, "law_000234")
	require.NoError(t, err)
	assert.Contains(t, content, "故意伤害")
}

func TestSQLiteStore_GetContent_AbsentIsEmpty(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	defer s.Close()

	content, err := s.GetContent(context.Background(), CategoryCase, "case_999999")
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestSQLiteStore_EmptyCategory(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	defer s.Close()

	matrix, err := s.GetVectors(context.Background(), CategoryCase)
	require.NoError(t, err)
	assert.Equal(t, 0, matrix.Len())

	metas, err := s.GetMetadata(context.Background(), CategoryCase)
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestSQLiteStore_UpsertReplaces(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.PutDocuments(ctx, CategoryArticle, seedDocs()))

	updated := []Document{{
		Meta:    DocumentMeta{ID: "234", Title: "故意伤害罪（修订）", ArticleNo: 234},
		Content: "修订后的条文内容。",
		Vector:  []float32{0.7, 0.8, 0.9},
	}}
	require.NoError(t, s.PutDocuments(ctx, CategoryArticle, updated))

	matrix, err := s.GetVectors(ctx, CategoryArticle)
	require.NoError(t, err)
	assert.Equal(t, 2, matrix.Len())

	content, err := s.GetContent(ctx, CategoryArticle, "law_000234")
	require.NoError(t, err)
	assert.Contains(t, content, "修订")
}

func TestSQLiteStore_FileLockConflict(t *testing.T) {
	dir := t.TempDir()

	first, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	defer first.Close()

	_, err = NewSQLiteStore(dir)
	require.Error(t, err)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.PutDocuments(ctx, CategoryCase, []Document{{
		Meta:    DocumentMeta{ID: "42", Accusations: []string{"盗窃"}},
		Content: "判决书正文。",
		Vector:  []float32{1, 0},
	}}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	content, err := reopened.GetContent(ctx, CategoryCase, "case_000042")
	require.NoError(t, err)
	assert.Contains(t, content, "判决书")

	metas, err := reopened.GetMetadata(ctx, CategoryCase)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, []string{"盗窃"}, metas[0].Accusations)
}

func TestVectorEncoding_RoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeVector_Truncated(t *testing.T) {
	_, err := decodeVector([]byte{1, 2, 3})
	require.Error(t, err)
}
