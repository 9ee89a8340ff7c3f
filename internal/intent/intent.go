// Package intent holds the closed vocabularies produced by classification:
// primary intent, urgency, conversation context, and the Classification
// value that carries them through routing.
package intent

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Intent string

const (
	Financeiro Intent = "financeiro"
	Marketing  Intent = "marketing"
	RH         Intent = "rh"
	Geral      Intent = "geral"
)

// All lists the primary intents in tie-break order.
var All = []Intent{Financeiro, Marketing, RH, Geral}

func ParseIntent(s string) (Intent, bool) {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case Financeiro:
		return Financeiro, true
	case Marketing:
		return Marketing, true
	case RH:
		return RH, true
	case Geral:
		return Geral, true
	}
	return "", false
}

// Urgency is ordinal: Critica > Alta > Media > Baixa.
type Urgency int

const (
	Baixa Urgency = iota
	Media
	Alta
	Critica
)

var urgencyNames = [...]string{"baixa", "media", "alta", "critica"}

func (u Urgency) String() string {
	if u < Baixa || u > Critica {
		return fmt.Sprintf("urgency(%d)", int(u))
	}
	return urgencyNames[u]
}

// Rank is the numeric weight used for prioritization.
func (u Urgency) Rank() int { return int(u) }

func ParseUrgency(s string) (Urgency, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer("í", "i", "é", "e").Replace(v)
	for i, name := range urgencyNames {
		if v == name {
			return Urgency(i), true
		}
	}
	return Media, false
}

func (u Urgency) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *Urgency) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, ok := ParseUrgency(s)
	if !ok {
		return fmt.Errorf("invalid urgency %q", s)
	}
	*u = v
	return nil
}

type ConversationContext string

const (
	Inicial      ConversationContext = "inicial"
	Continuidade ConversationContext = "continuidade"
)

// Source records which layer produced a classification. Diagnostic only.
type Source string

const (
	SourceHeuristic Source = "heuristic"
	SourceCache     Source = "cache"
	SourceSemantic  Source = "semantic"
	SourceFallback  Source = "fallback"
	SourceEmpty     Source = "empty"
)

// Secondary tags.
const (
	TagRegistrarTransacao  = "registrar_transacao"
	TagConsultarSaldo      = "consultar_saldo"
	TagCriarCategoria      = "criar_categoria"
	TagGerarRelatorio      = "gerar_relatorio"
	TagPlanejarOrcamento   = "planejar_orcamento"
	TagCriarCampanha       = "criar_campanha"
	TagEstrategiaVendas    = "estrategia_vendas"
	TagRedesSociais        = "gestao_redes_sociais"
	TagContratacao         = "contratacao_funcionario"
	TagGestaoConflitos     = "gestao_conflitos"
	TagClimaOrganizacional = "clima_organizacional"
	TagOrientacaoGeral     = "orientacao_geral"
	TagOutro               = "outro"
)

type Classification struct {
	PrimaryIntent       Intent              `json:"primaryIntent"`
	SecondaryIntent     map[Intent]string   `json:"secondaryIntent"`
	Urgency             Urgency             `json:"urgency"`
	ConversationContext ConversationContext `json:"conversationContext"`
	Confidence          float64             `json:"confidence"`
	Reasoning           string              `json:"reasoning"`

	Source         Source `json:"source,omitempty"`
	HeuristicRoute bool   `json:"-"`
}

// Secondary returns the fine-grained tag for the primary intent.
func (c Classification) Secondary() string {
	if c.SecondaryIntent == nil {
		return ""
	}
	return c.SecondaryIntent[c.PrimaryIntent]
}

// Clone copies the classification including its secondary map.
func (c Classification) Clone() Classification {
	out := c
	if c.SecondaryIntent != nil {
		out.SecondaryIntent = make(map[Intent]string, len(c.SecondaryIntent))
		for k, v := range c.SecondaryIntent {
			out.SecondaryIntent[k] = v
		}
	}
	return out
}

// ClampConfidence forces v into [0,1]; NaN becomes 0.
func ClampConfidence(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
