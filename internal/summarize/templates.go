package summarize

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/raaihank/doc-sentinel/internal/config"
)

var (
	// ErrUnknownTemplate is returned for a template key that is not registered
	ErrUnknownTemplate = errors.New("unknown template")
	// ErrInvalidTemplate is returned for a custom template whose prompts
	// cannot take the document
	ErrInvalidTemplate = errors.New("invalid template")
)

const textMarker = "{text}"

// Template holds the three prompts used for one kind of certificate. Each
// prompt contains a {text} marker where the redacted document goes.
type Template struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	History     string `json:"-"`
	Symptoms    string `json:"-"`
	Summary     string `json:"-"`
}

const fullSummaryPrompt = `以下は個人情報を削除した医療文書です。
全期間の経過を詳しくまとめてください。

以下の構成で記載:
1. 診断名
2. 発症と初診の経緯
3. 治療経過（時系列で詳細に）
   - 薬物療法の内容と変更
   - 入院治療があれば詳細
   - 検査結果
4. 現在の状態
   - 症状
   - 日常生活状況
   - 就労状況
5. 今後の治療方針

文体: 詳細な医学的記述
文字数: 制限なし（詳しく書く）

【医療文書】
{text}

【出力】
見出しをつけて、時系列順に詳しく記載してください。`

var builtinTemplates = map[string]Template{
	"disability_pension": {
		Key:         "disability_pension",
		Name:        "障害年金診断書（標準）",
		Description: "障害年金申請用の診断書に記載する内容",
		History: `以下は個人情報を削除した医療文書です。
障害年金診断書の「病歴」欄に記載する内容を200-300文字で作成してください。

必ず含める項目:
- 診断名（正式名称）
- 発症時期（いつから症状が始まったか）
- 初診時期（いつ初めて受診したか）
- 治療経過（どんな治療をしてきたか）
- 入院歴があれば時期と期間

文体: 簡潔な医学的記述（である調）
文字数: 200-300文字厳守

【医療文書】
{text}

【出力】
診断名から始めて、時系列順に簡潔に記載してください。`,
		Symptoms: `以下は個人情報を削除した医療文書です。
障害年金診断書の「症状の詳細」欄に記載する内容を200-300文字で作成してください。

必ず含める項目:
- 現在の主要な症状（具体的に）
- 症状の頻度や程度
- 日常生活への影響（ADL）
- 就労能力への影響
- 必要な支援や見守りの内容

文体: 簡潔な医学的記述（である調）
文字数: 200-300文字厳守

【医療文書】
{text}

【出力】
現在の状態を中心に、具体的な影響を記載してください。`,
		Summary: fullSummaryPrompt,
	},
	"mental_health_handbook": {
		Key:         "mental_health_handbook",
		Name:        "精神障害者保健福祉手帳",
		Description: "精神障害者保健福祉手帳申請用",
		History: `以下は個人情報を削除した医療文書です。
精神障害者保健福祉手帳申請用の「病歴」を200-300文字で作成してください。

必ず含める項目:
- 診断名
- 発症時期
- 初診と治療開始時期
- 病状の経過（安定/変動/悪化の傾向）
- 主な治療内容

文体: 簡潔な医学的記述
文字数: 200-300文字

【医療文書】
{text}

【出力】`,
		Symptoms: `以下は個人情報を削除した医療文書です。
精神障害者保健福祉手帳申請用の「現在の症状」を200-300文字で作成してください。

必ず含める項目:
- 主要な精神症状
- 日常生活の制限（家事、外出、対人関係など）
- 単独での生活の可否
- 援助の必要性

文体: 簡潔な医学的記述
文字数: 200-300文字

【医療文書】
{text}

【出力】`,
		Summary: fullSummaryPrompt,
	},
	"self_support_medical": {
		Key:         "self_support_medical",
		Name:        "自立支援医療",
		Description: "自立支援医療申請用",
		History: `以下は個人情報を削除した医療文書です。
自立支援医療申請用の「病歴」を200-300文字で作成してください。

必ず含める項目:
- 診断名
- 発症時期と初診時期
- これまでの治療経過（簡潔に）
- 現在の治療内容

文字数: 200-300文字

【医療文書】
{text}

【出力】`,
		Symptoms: `以下は個人情報を削除した医療文書です。
自立支援医療申請用の「症状と治療の必要性」を200-300文字で作成してください。

必ず含める項目:
- 現在の主要な症状
- 症状による生活への支障
- 継続治療の必要性とその理由
- 治療を中断した場合のリスク

文字数: 200-300文字

【医療文書】
{text}

【出力】`,
		Summary: fullSummaryPrompt,
	},
}

var defaultRegistry = &Registry{templates: builtinTemplates}

// Registry holds the built-in templates and any configured custom ones
type Registry struct {
	templates map[string]Template
}

// NewRegistry merges custom templates over the built-ins. A custom template
// may replace a built-in of the same key. History and symptoms prompts are
// required; an empty summary prompt uses the shared full-period prompt.
func NewRegistry(custom map[string]config.TemplateConfig) (*Registry, error) {
	merged := make(map[string]Template, len(builtinTemplates)+len(custom))
	for key, t := range builtinTemplates {
		merged[key] = t
	}

	for key, tc := range custom {
		t := Template{
			Key:         key,
			Name:        tc.Name,
			Description: tc.Description,
			History:     tc.History,
			Symptoms:    tc.Symptoms,
			Summary:     tc.Summary,
		}
		if t.Name == "" {
			t.Name = key
		}
		if t.Summary == "" {
			t.Summary = fullSummaryPrompt
		}
		if err := t.validate(); err != nil {
			return nil, err
		}
		merged[key] = t
	}

	return &Registry{templates: merged}, nil
}

func (t Template) validate() error {
	if strings.TrimSpace(t.Key) == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidTemplate)
	}
	prompts := []struct{ name, prompt string }{
		{"history", t.History},
		{"symptoms", t.Symptoms},
		{"summary", t.Summary},
	}
	for _, p := range prompts {
		if !strings.Contains(p.prompt, textMarker) {
			return fmt.Errorf("%w %q: %s prompt has no %s marker", ErrInvalidTemplate, t.Key, p.name, textMarker)
		}
	}
	return nil
}

// Lookup returns the template registered under key
func (r *Registry) Lookup(key string) (Template, error) {
	t, ok := r.templates[key]
	if !ok {
		return Template{}, fmt.Errorf("%w %q (available: %s)", ErrUnknownTemplate, key, strings.Join(r.Keys(), ", "))
	}
	return t, nil
}

// Keys lists the registered template keys in sorted order
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.templates))
	for k := range r.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LookupTemplate returns the built-in template registered under key
func LookupTemplate(key string) (Template, error) {
	return defaultRegistry.Lookup(key)
}

// TemplateKeys lists the built-in template keys in sorted order
func TemplateKeys() []string {
	return defaultRegistry.Keys()
}

// Render substitutes the document into a prompt
func Render(prompt, text string) string {
	return strings.ReplaceAll(prompt, textMarker, text)
}
