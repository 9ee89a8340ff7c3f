package intent

import (
	"encoding/json"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUrgency_TotalOrder(t *testing.T) {
	assert.True(t, Critica > Alta)
	assert.True(t, Alta > Media)
	assert.True(t, Media > Baixa)

	us := []Urgency{Media, Critica, Baixa, Alta}
	sort.Slice(us, func(i, j int) bool { return us[i] > us[j] })
	assert.Equal(t, []Urgency{Critica, Alta, Media, Baixa}, us)
}

func TestUrgency_JSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(Critica)
	require.NoError(t, err)
	assert.Equal(t, `"critica"`, string(b))

	var u Urgency
	require.NoError(t, json.Unmarshal([]byte(`"crítica"`), &u))
	assert.Equal(t, Critica, u)

	require.Error(t, json.Unmarshal([]byte(`"maxima"`), &u))
}

func TestParseIntent(t *testing.T) {
	got, ok := ParseIntent(" Financeiro ")
	assert.True(t, ok)
	assert.Equal(t, Financeiro, got)

	_, ok = ParseIntent("vendas")
	assert.False(t, ok)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(math.NaN()))
	assert.Equal(t, 0.0, ClampConfidence(-2))
	assert.Equal(t, 1.0, ClampConfidence(3))
	assert.Equal(t, 0.4, ClampConfidence(0.4))
}

func TestClassification_CloneIsDeep(t *testing.T) {
	c := Classification{PrimaryIntent: Financeiro, SecondaryIntent: map[Intent]string{Financeiro: TagConsultarSaldo}}
	cp := c.Clone()
	cp.SecondaryIntent[Financeiro] = TagOutro
	assert.Equal(t, TagConsultarSaldo, c.Secondary())
}
