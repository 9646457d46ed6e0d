package privacy

import "strings"

// defaultProtectedTerms are clinical words that name matchers must never treat
// as a person's name.
var defaultProtectedTerms = []string{
	// diagnoses and symptoms
	"統合失調症", "双極性障害", "うつ病", "不安障害", "適応障害",
	"認知症", "てんかん", "パーキンソン病", "糖尿病", "高血圧",
	"脂質異常症", "気管支喘息", "慢性閉塞性肺疾患", "心不全",
	"狭心症", "心筋梗塞", "脳梗塞", "脳出血", "くも膜下出血",
	"頭痛", "発熱", "咳嗽", "呼吸困難", "胸痛", "腹痛",
	"幻聴", "妄想", "幻覚", "被害念慮", "抑うつ", "不安",
	// drugs
	"リスペリドン", "オランザピン", "クエチアピン", "アリピプラゾール",
	"パリペリドン", "ハロペリドール", "レボメプロマジン",
	"リチウム", "バルプロ酸", "カルバマゼピン", "ラモトリギン",
	"フルボキサミン", "パロキセチン", "セルトラリン", "エスシタロプラム",
	"デュロキセチン", "ミルタザピン", "ボルチオキセチン",
	"ロラゼパム", "クロナゼパム", "ジアゼパム", "エチゾラム",
	// roles
	"医師", "看護師", "薬剤師", "患者", "家族", "母", "父",
}

// ProtectedTerms is an immutable vocabulary exempted from name redaction
type ProtectedTerms struct {
	terms []string
}

// DefaultProtectedTerms returns the built-in clinical vocabulary
func DefaultProtectedTerms() ProtectedTerms {
	return NewProtectedTerms(nil)
}

// NewProtectedTerms returns the built-in vocabulary extended with extra terms.
// Blank extras are ignored.
func NewProtectedTerms(extra []string) ProtectedTerms {
	terms := make([]string, 0, len(defaultProtectedTerms)+len(extra))
	terms = append(terms, defaultProtectedTerms...)
	for _, term := range extra {
		if term = strings.TrimSpace(term); term != "" {
			terms = append(terms, term)
		}
	}
	return ProtectedTerms{terms: terms}
}

// IsProtected reports whether candidate contains any protected term
func (p ProtectedTerms) IsProtected(candidate string) bool {
	for _, term := range p.terms {
		if strings.Contains(candidate, term) {
			return true
		}
	}
	return false
}

// Len returns the vocabulary size
func (p ProtectedTerms) Len() int {
	return len(p.terms)
}
