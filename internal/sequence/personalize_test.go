package sequence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/cadence/internal/sequence"
	"github.com/kode4food/cadence/pkg/api"
)

func TestPersonalize(t *testing.T) {
	contact := &api.Contact{FirstName: "Ana", Company: "Acme"}

	assert.Equal(t, "Hi Ana, I work at Acme",
		sequence.Personalize("Hi {first_name}, I work at {company}", contact),
	)
	assert.Equal(t, "Hi Ana from {location} {nickname}",
		sequence.Personalize("Hi {first_name} from {location} {nickname}", contact),
	)
	assert.Equal(t, "", sequence.Personalize("", contact))
	assert.Equal(t, "{first_name}", sequence.Personalize("{first_name}", nil))
}

func TestUnresolved(t *testing.T) {
	contact := &api.Contact{FirstName: "Ana"}
	assert.Equal(t,
		[]string{"{company}", "{nickname}"},
		sequence.Unresolved("{first_name} {company} {nickname}", contact),
	)
	assert.Empty(t, sequence.Unresolved("Hello {first_name}", contact))
}
