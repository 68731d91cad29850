package templates

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youthclub/notification-queue/internal/model"
)

type mapSource struct {
	texts map[model.Category]string
	err   error
}

func (m mapSource) Template(ctx context.Context, c model.Category) (string, error) {
	return m.texts[c], m.err
}

func TestRender_NoStoredTemplateReturnsDefaultVerbatim(t *testing.T) {
	t.Parallel()

	r := NewRenderer(mapSource{}, nil)
	for _, c := range model.Categories {
		assert.Equal(t, Default(c), r.Render(context.Background(), c, Payload{}), c)
	}
}

func TestRender_StoredTemplateSubstitutes(t *testing.T) {
	t.Parallel()

	r := NewRenderer(mapSource{texts: map[model.Category]string{
		model.Finance: "Olá {guardian_name}, recebemos {amount} referente a {reference}.",
	}}, nil)

	got := r.Render(context.Background(), model.Finance,
		FinancePayload("Ana", "Leo", "R$ 30,00", "março"))
	assert.Equal(t, "Olá Ana, recebemos R$ 30,00 referente a março.", got)
}

func TestRender_MissingKeyFallsBackToDefault(t *testing.T) {
	t.Parallel()

	r := NewRenderer(mapSource{texts: map[model.Category]string{
		model.Registration: "Olá {guardian_name}, cadastro de {child_name} recebido.",
	}}, nil)

	got := r.Render(context.Background(), model.Registration, Payload{"guardian_name": "Ana"})
	assert.Equal(t, Default(model.Registration), got)
}

func TestRender_BlankStoredOrSourceErrorUsesDefault(t *testing.T) {
	t.Parallel()

	blank := NewRenderer(mapSource{texts: map[model.Category]string{model.General: "   "}}, nil)
	assert.Equal(t, Default(model.General), blank.Render(context.Background(), model.General, nil))

	failing := NewRenderer(mapSource{err: errors.New("db down")}, nil)
	assert.Equal(t, Default(model.Test), failing.Render(context.Background(), model.Test, nil))

	noSource := NewRenderer(nil, nil)
	assert.Equal(t, Default(model.Finance), noSource.Render(context.Background(), model.Finance, nil))
}

func TestDefault_UnknownCategoryUsesGeneral(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Default(model.General), Default(model.Category("newsletter")))
}

func TestSubstitute(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		tmpl    string
		payload Payload
		want    string
		wantErr error
	}{
		{"plain", "hello", nil, "hello", nil},
		{"single", "hi {name}!", Payload{"name": "Ana"}, "hi Ana!", nil},
		{"repeated", "{a}{a}", Payload{"a": "x"}, "xx", nil},
		{"escaped braces", "{{literal}} {name}", Payload{"name": "Ana"}, "{literal} Ana", nil},
		{"missing key", "hi {name}", Payload{}, "", ErrMissingPlaceholder},
		{"unterminated", "hi {name", Payload{"name": "x"}, "", ErrMalformedTemplate},
		{"empty placeholder", "hi {}", nil, "", ErrMalformedTemplate},
		{"stray close", "hi }", nil, "", ErrMalformedTemplate},
		{"utf8 passthrough", "Olá, {name}. Até já!", Payload{"name": "João"}, "Olá, João. Até já!", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Substitute(tc.tmpl, tc.payload)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDefaultsHaveNoPlaceholders(t *testing.T) {
	t.Parallel()

	for _, c := range model.Categories {
		out, err := Substitute(Default(c), nil)
		require.NoError(t, err, c)
		assert.Equal(t, Default(c), out, c)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate(model.Registration, RegistrationPayload("Ana", "Leo")))
	require.NoError(t, Validate(model.Test, nil))

	err := Validate(model.SignupConfirmation, SignupConfirmationPayload("Ana", "", " "))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncompletePayload))
	assert.Contains(t, err.Error(), "child_name")
	assert.Contains(t, err.Error(), "event")
}

func TestCheck(t *testing.T) {
	t.Parallel()

	require.NoError(t, Check(model.Finance, "Recebemos {amount} de {guardian_name} (ref {reference})"))
	require.NoError(t, Check(model.Test, "sem placeholders {{literal}}"))

	err := Check(model.LeadershipRegistration, "Olá {child_name}")
	assert.ErrorIs(t, err, ErrMissingPlaceholder)

	err = Check(model.General, "   ")
	assert.ErrorIs(t, err, ErrMalformedTemplate)
}
