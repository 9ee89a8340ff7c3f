package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/suPer8Hu/agent-squad/internal/ai"
	"github.com/suPer8Hu/agent-squad/internal/intent"
	"github.com/suPer8Hu/agent-squad/internal/session"
)

var ErrUnparseable = errors.New("classifier: unparseable model output")

const historyLines = 5

const systemPrompt = `Você é um classificador de mensagens de pequenos empreendedores brasileiros.
Responda APENAS com um objeto JSON, sem texto extra, no formato:
{"primaryIntent":"financeiro|marketing|rh|geral","secondaryIntent":"<tag>","urgency":"baixa|media|alta|critica","confidence":0.0,"reasoning":"<frase curta>"}

primaryIntent:
- financeiro: dinheiro, transações, relatórios, categorias, saldo, orçamento
- marketing: vendas, clientes, campanhas, redes sociais, promoções
- rh: pessoas, contratação, gestão de equipe, clima organizacional
- geral: dúvidas conceituais, orientações básicas, qualquer outra coisa

secondaryIntent:
- financeiro: registrar_transacao, consultar_saldo, criar_categoria, gerar_relatorio, planejar_orcamento, outro
- marketing: criar_campanha, estrategia_vendas, gestao_redes_sociais, outro
- rh: contratacao_funcionario, gestao_conflitos, clima_organizacional, outro
- geral: orientacao_geral, outro

urgency:
- baixa: pode esperar, curiosidade, planejamento futuro
- media: questões normais do negócio
- alta: precisa de atenção rápida, afeta a operação
- critica: emergência, afeta receita ou operação agora`

var tagPattern = regexp.MustCompile(`^[a-z_]{2,40}$`)

func buildPrompt(message string, sc session.Context) []ai.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Mensagem do usuário: %q", message)
	if recent := sc.RecentMessages; len(recent) > 0 {
		if len(recent) > historyLines {
			recent = recent[len(recent)-historyLines:]
		}
		b.WriteString("\nHistórico da conversa:")
		for _, m := range recent {
			fmt.Fprintf(&b, "\n%s: %s", m.Role, m.Content)
		}
	}
	return []ai.Message{
		{Role: ai.RoleSystem, Content: systemPrompt},
		{Role: ai.RoleUser, Content: b.String()},
	}
}

type rawClassification struct {
	PrimaryIntent   string          `json:"primaryIntent"`
	SecondaryIntent json.RawMessage `json:"secondaryIntent"`
	Urgency         string          `json:"urgency"`
	Confidence      *float64        `json:"confidence"`
	Reasoning       string          `json:"reasoning"`
}

// parseModelOutput validates model text against the closed vocabularies.
// It accepts a JSON object (optionally fenced) or a bare intent word.
func parseModelOutput(out string) (intent.Classification, error) {
	text := strings.TrimSpace(out)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		word := strings.Trim(text, " \t\n\"'.!")
		in, ok := intent.ParseIntent(word)
		if !ok {
			return intent.Classification{}, fmt.Errorf("%w: %q", ErrUnparseable, truncate(out, 80))
		}
		return intent.Classification{
			PrimaryIntent:   in,
			SecondaryIntent: map[intent.Intent]string{in: intent.TagOutro},
			Urgency:         intent.Media,
			Confidence:      0.7,
			Reasoning:       "classificação semântica (intenção simples)",
		}, nil
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return intent.Classification{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	in, ok := intent.ParseIntent(raw.PrimaryIntent)
	if !ok {
		return intent.Classification{}, fmt.Errorf("%w: primary intent %q", ErrUnparseable, raw.PrimaryIntent)
	}
	urg := intent.Media
	if raw.Urgency != "" {
		if urg, ok = intent.ParseUrgency(raw.Urgency); !ok {
			return intent.Classification{}, fmt.Errorf("%w: urgency %q", ErrUnparseable, raw.Urgency)
		}
	}
	conf := 0.7
	if raw.Confidence != nil {
		conf = intent.ClampConfidence(*raw.Confidence)
	}
	reasoning := strings.TrimSpace(raw.Reasoning)
	if reasoning == "" {
		reasoning = "classificação semântica"
	}
	return intent.Classification{
		PrimaryIntent:   in,
		SecondaryIntent: map[intent.Intent]string{in: parseTag(raw.SecondaryIntent, in)},
		Urgency:         urg,
		Confidence:      conf,
		Reasoning:       reasoning,
	}, nil
}

// parseTag accepts either "tag" or {"<intent>":"tag"}.
func parseTag(raw json.RawMessage, in intent.Intent) string {
	if len(raw) == 0 {
		return intent.TagOutro
	}
	var tag string
	if err := json.Unmarshal(raw, &tag); err != nil {
		var m map[string]string
		if err := json.Unmarshal(raw, &m); err != nil {
			return intent.TagOutro
		}
		tag = m[string(in)]
	}
	tag = strings.ToLower(strings.TrimSpace(tag))
	if !tagPattern.MatchString(tag) {
		return intent.TagOutro
	}
	return tag
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
