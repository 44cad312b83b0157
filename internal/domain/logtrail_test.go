package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicehub/internal/domain"
)

func TestLogTrail(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	trail := domain.LogTrail{Now: func() time.Time { return now }}

	_, err := trail.Current()
	require.ErrorIs(t, err, domain.ErrEmptyLog)

	alice := domain.RestoreUser(domain.UserParams{ID: "alice"})
	bob := domain.RestoreUser(domain.UserParams{ID: "bob"})

	trail.Append(domain.StatusCreated, alice, "")
	trail.Append(domain.StatusFinished, bob, "")
	last := trail.Append(domain.StatusCancelled, alice, "no longer needed")

	cur, err := trail.Current()
	require.NoError(t, err)
	assert.Equal(t, last, cur)
	assert.Equal(t, now, cur.At)
	assert.Equal(t, "no longer needed", cur.Reason)
	assert.Equal(t, 3, trail.Len())

	assert.True(t, trail.Exists(domain.StatusFinished, nil))
	assert.True(t, trail.Exists(domain.StatusFinished, bob))
	assert.False(t, trail.Exists(domain.StatusFinished, alice))
	assert.True(t, trail.Exists(domain.StatusFinished, domain.RestoreUser(domain.UserParams{ID: "bob"})), "matched by id")
	assert.False(t, trail.Exists(domain.StatusRated, nil))

	entries := trail.Entries()
	entries[0].Status = domain.StatusRated
	assert.False(t, trail.Exists(domain.StatusRated, nil), "entries is a copy")
}

func TestValueObjects(t *testing.T) {
	for _, doc := range []string{"529.982.247-25", "52998224725", "111.444.777-35"} {
		_, err := domain.NewDocument(doc)
		assert.NoError(t, err, doc)
	}
	for _, doc := range []string{"529.982.247-24", "111.111.111-11", "123", ""} {
		_, err := domain.NewDocument(doc)
		assert.Error(t, err, doc)
	}
	d, _ := domain.NewDocument("529.982.247-25")
	assert.Equal(t, "52998224725", d.Digits())

	for _, e := range []string{"a@b.co", "first.last@example.com.br"} {
		_, err := domain.NewEmail(e)
		assert.NoError(t, err, e)
	}
	for _, e := range []string{"nope", "a@b", "Name <a@b.com>", ""} {
		_, err := domain.NewEmail(e)
		assert.Error(t, err, e)
	}

	for _, c := range []string{"(11) 1234-5678", "(11) 91234-5678"} {
		_, err := domain.NewContact(c)
		assert.NoError(t, err, c)
	}
	for _, c := range []string{"11 91234-5678", "(11) 912345678", "(1) 1234-5678"} {
		_, err := domain.NewContact(c)
		assert.Error(t, err, c)
	}

	_, err := domain.NewAddress("01310-100", 10, "")
	assert.NoError(t, err)
	_, err = domain.NewAddress("01310100", 10, "")
	assert.Error(t, err)
	_, err = domain.NewAddress("01310-100", 0, "")
	assert.Error(t, err)
}
