package classifier

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/suPer8Hu/agent-squad/internal/intent"
)

// Vocabularies are matched against lowercased text. Go's \b is ASCII-only,
// so boundaries are used only next to ASCII letters.
var domainPatterns = []struct {
	intent intent.Intent
	re     *regexp.Regexp
}{
	{intent.Financeiro, regexp.MustCompile(`fluxo de caixa|despesas?|receitas?|categorias?|saldo|relat[óo]rios?|dinheiro|or[çc]amentos?|\bpagar\b|pagamentos?|fornecedor(es)?|boletos?|\blucro|margem|\bcustos?\b|faturamento|transa[çc](ão|ões|ao|oes)|r\$\s*\d|\bgastos?\b|contas a pagar|contas a receber`)},
	{intent.Marketing, regexp.MustCompile(`marketing|instagram|whatsapp|campanhas?|\bvendas?\b|\bvender\b|clientes?|promo[çc](ão|ões|ao|oes)|divulga|an[úu]ncios?|redes sociais|concorr[êe]ncia|concorrentes?`)},
	{intent.RH, regexp.MustCompile(`contrata[çc](ão|ões|ao|oes)|\bcontratar\b|recrutamento|\bclima\b|lideran[çc]a|conflitos?|feedback|\brh\b|funcion[áa]rios?|colaborador(es)?|\bequipe\b|demiss|f[ée]rias|treinamento`)},
}

var secondaryPatterns = map[intent.Intent][]struct {
	tag string
	re  *regexp.Regexp
}{
	intent.Financeiro: {
		{intent.TagRegistrarTransacao, regexp.MustCompile(`(registrar|lan[çc]ar|anotar|adicionar|incluir|cadastrar)\b.*(receita|despesa|venda|gasto|pagamento|transa[çc])`)},
		{intent.TagConsultarSaldo, regexp.MustCompile(`saldo|tenho dinheiro|quanto (eu )?tenho|dinheiro (em|no) caixa|dinheiro para`)},
		{intent.TagGerarRelatorio, regexp.MustCompile(`relat[óo]rio`)},
		{intent.TagCriarCategoria, regexp.MustCompile(`categoria`)},
		{intent.TagPlanejarOrcamento, regexp.MustCompile(`or[çc]amento|planej`)},
	},
	intent.Marketing: {
		{intent.TagCriarCampanha, regexp.MustCompile(`campanha|promo[çc]`)},
		{intent.TagRedesSociais, regexp.MustCompile(`instagram|redes sociais|whatsapp|\bposts?\b`)},
		{intent.TagEstrategiaVendas, regexp.MustCompile(`\bvend|clientes?`)},
	},
	intent.RH: {
		{intent.TagContratacao, regexp.MustCompile(`contrat|recrut|\bvagas?\b`)},
		{intent.TagGestaoConflitos, regexp.MustCompile(`conflito|briga|discuss`)},
		{intent.TagClimaOrganizacional, regexp.MustCompile(`\bclima\b|motiva|feedback|lideran`)},
	},
}

var (
	criticaCue = regexp.MustCompile(`urgente|urg[êe]ncia|emerg[êe]ncia|imediatamente|agora mesmo|socorro|cr[íi]tic[oa]`)
	altaCue    = regexp.MustCompile(`r[áa]pido|\bprazo|atrasad|\bvence|vencid|o quanto antes|\basap\b|hoje mesmo|preciso logo`)
	baixaCue   = regexp.MustCompile(`curiosidade|futuramente|no futuro|quando puder|sem pressa|algum dia|s[óo] por curiosidade`)
)

type heuristicResult struct {
	intent    intent.Intent
	hits      int
	secondary string
}

// matchDomain counts vocabulary hits per domain. The domain with the most
// hits wins; ties keep declaration order (financeiro, marketing, rh).
func matchDomain(text string) (heuristicResult, bool) {
	var best heuristicResult
	for _, d := range domainPatterns {
		n := len(d.re.FindAllStringIndex(text, -1))
		if n > best.hits {
			best = heuristicResult{intent: d.intent, hits: n}
		}
	}
	if best.hits == 0 {
		return best, false
	}
	best.secondary = secondaryTag(best.intent, text)
	return best, true
}

func secondaryTag(in intent.Intent, text string) string {
	if in == intent.Geral {
		return intent.TagOrientacaoGeral
	}
	for _, p := range secondaryPatterns[in] {
		if p.re.MatchString(text) {
			return p.tag
		}
	}
	return intent.TagOutro
}

func detectUrgency(text string) intent.Urgency {
	switch {
	case criticaCue.MatchString(text):
		return intent.Critica
	case altaCue.MatchString(text):
		return intent.Alta
	case baixaCue.MatchString(text):
		return intent.Baixa
	}
	return intent.Media
}

func heuristicConfidence(hits int) float64 {
	c := 0.6 + 0.1*float64(hits-1)
	if c > 0.95 {
		c = 0.95
	}
	return c
}

// meaningful reports whether s has at least one letter or digit.
func meaningful(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// gibberish reports whether every word in the normalized text looks like a
// keyboard mash. Digits count as content.
func gibberish(text string) bool {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !mashed(w) {
			return false
		}
	}
	return true
}

func mashed(word string) bool {
	var letters, vowels, run, longest, repeat, longestRepeat int
	var prev rune
	for _, r := range word {
		if unicode.IsDigit(r) {
			return false
		}
		letters++
		if r == prev {
			repeat++
		} else {
			repeat = 1
		}
		longestRepeat = max(longestRepeat, repeat)
		prev = r
		if strings.ContainsRune("aeiouyáàâãéêíóôõúü", r) {
			vowels++
			run = 0
			continue
		}
		run++
		longest = max(longest, run)
	}
	switch {
	case longest >= 5, longestRepeat >= 4:
		return true
	case vowels == 0:
		return letters >= 5
	}
	return false
}

// normalize is the cache key form: trimmed, lowercased, single-spaced.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
