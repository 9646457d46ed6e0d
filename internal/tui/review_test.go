package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/raaihank/doc-sentinel/internal/privacy"
	"github.com/raaihank/doc-sentinel/internal/review"
)

func newModel(t *testing.T, text string) (Model, *review.Workflow) {
	t.Helper()
	detector, err := privacy.New(config.PrivacyConfig{Enabled: true, Detectors: []string{"all"}}, logger.Nop())
	require.NoError(t, err)

	wf := review.NewWorkflow(text, true)
	_, err = wf.Redact(detector)
	require.NoError(t, err)
	require.Equal(t, review.AwaitingReview, wf.State())
	return New(wf), wf
}

func press(t *testing.T, m Model, keys ...tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var updated tea.Model
		updated, cmd = m.Update(k)
		m = updated.(Model)
	}
	return m, cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var enter = tea.KeyMsg{Type: tea.KeyEnter}

func TestModel_SearchDeleteConfirm(t *testing.T) {
	m, wf := newModel(t, "氏名：田中太郎\n電話 03-1234-5678\n担当 田中先生")
	assert.Contains(t, m.View(), "press / to search")

	m, _ = press(t, m, runes("/"))
	assert.Equal(t, modeSearch, m.mode)

	m, _ = press(t, m, runes("田中"), enter)
	assert.Equal(t, modeBrowse, m.mode)
	session, ok := wf.Session()
	require.True(t, ok)
	assert.Equal(t, 1, session.Len())
	view := m.View()
	assert.Contains(t, view, "[1/1]")
	assert.Contains(t, view, "田中")

	m, _ = press(t, m, runes("d"))
	assert.Equal(t, "氏名：[氏名]\n電話 [電話番号]\n担当 先生", wf.Text())
	assert.Contains(t, m.View(), "[no matches]")

	m, _ = press(t, m, runes("d"))
	assert.Equal(t, "nothing left to delete", m.status)

	m, cmd := press(t, m, runes("c"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.Confirmed())
	assert.Contains(t, m.View(), "confirmed")
}

func TestModel_Navigate(t *testing.T) {
	m, wf := newModel(t, "患者氏名：田中太郎\n家族 田中、田中")
	m, _ = press(t, m, runes("/"), runes("田中"), enter)

	ordinal := func() int {
		c, ok, err := wf.Current()
		require.NoError(t, err)
		require.True(t, ok)
		return c.Ordinal
	}
	assert.Equal(t, 1, ordinal())

	m, _ = press(t, m, runes("n"))
	assert.Equal(t, 2, ordinal())
	assert.Contains(t, m.View(), "[2/2]")

	m, _ = press(t, m, runes("n"))
	assert.Equal(t, 1, ordinal(), "forward wraps")

	_, _ = press(t, m, runes("N"))
	assert.Equal(t, 2, ordinal(), "backward wraps")
}

func TestModel_Errors(t *testing.T) {
	t.Run("NavigateBeforeSearch", func(t *testing.T) {
		m, _ := newModel(t, "主治医 山本")
		m, _ = press(t, m, runes("n"))
		require.Error(t, m.err)
		assert.Contains(t, m.View(), "press / first")
	})

	t.Run("EmptyQuery", func(t *testing.T) {
		m, wf := newModel(t, "主治医 山本")
		m, _ = press(t, m, runes("/"), enter)
		assert.ErrorIs(t, m.err, review.ErrEmptyQuery)
		_, ok := wf.Session()
		assert.False(t, ok)
	})

	t.Run("EscCancelsSearch", func(t *testing.T) {
		m, wf := newModel(t, "主治医 山本")
		m, _ = press(t, m, runes("/"), runes("山本"), tea.KeyMsg{Type: tea.KeyEsc})
		assert.Equal(t, modeBrowse, m.mode)
		_, ok := wf.Session()
		assert.False(t, ok)
	})
}

func TestModel_QuitWithoutConfirm(t *testing.T) {
	m, wf := newModel(t, "主治医 山本")
	m, cmd := press(t, m, runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.False(t, m.Confirmed())
	assert.Equal(t, review.AwaitingReview, wf.State())
	assert.Empty(t, m.View())
}

func TestFlatten(t *testing.T) {
	assert.Equal(t, "a↵b↵c d", flatten("a\r\nb\nc\td"))
}
