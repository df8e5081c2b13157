package latex

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func displayLabels(thms []Theorem) []string {
	out := make([]string, 0, len(thms))
	for _, t := range thms {
		out = append(out, t.DisplayLabel)
	}
	return out
}

func TestEnvironments(t *testing.T) {
	src := `\newtheorem{thm}{Theorem}
\newtheorem{mainTheorem}{Main Result}
\newtheorem{lemma}{Lemma}
\newtheorem*{thmA}[theorem]{Theorem A}
\newtheorem{thm}{Theorem}`

	want := []Environment{
		{Name: "theorem", Display: "Theorem"},
		{Name: "thm", Display: "Theorem"},
		{Name: "mainTheorem", Display: "Main Result"},
		{Name: "thmA", Display: "Theorem A"},
	}
	if diff := cmp.Diff(want, Environments(src)); diff != "" {
		t.Errorf("environments mismatch (-want +got):\n%s", diff)
	}
}

func TestSections(t *testing.T) {
	src := `\section{Intro} x \section[short]{Setup} y \section{5. Main results} z \section{Next}`

	secs := Sections(src)
	require.Len(t, secs, 4)

	var numbers []int
	for _, s := range secs {
		numbers = append(numbers, s.Number)
	}
	assert.Equal(t, []int{1, 2, 5, 6}, numbers)
	assert.Equal(t, "Setup", secs[1].Title)
	assert.Equal(t, strings.Index(src, `\section[short]`), secs[1].Pos)
}

func TestSectionNumbering(t *testing.T) {
	assert.True(t, SectionNumbering(`\numberwithin{theorem}{section}`))
	assert.True(t, SectionNumbering(`\newtheorem{theorem}{Theorem}[section]`))
	assert.False(t, SectionNumbering(`\newtheorem{theorem}{Theorem}`))
}

func TestExtract_RunningCounter(t *testing.T) {
	src := `\begin{theorem}First.\end{theorem}
text
\begin{theorem}Second.\end{theorem}`

	thms := Extract(src)
	require.Len(t, thms, 2)
	assert.Equal(t, []string{"Theorem 1", "Theorem 2"}, displayLabels(thms))
	assert.Equal(t, "First.", thms[0].Content)
	assert.Equal(t, 0, thms[0].Start)
	assert.Equal(t, len(`\begin{theorem}First.\end{theorem}`), thms[0].End)
}

func TestExtract_TitledTheoremKeepsTitle(t *testing.T) {
	src := `\begin{theorem}[Fermat]No solutions.\end{theorem}`

	thms := Extract(src)
	require.Len(t, thms, 1)
	assert.Equal(t, "Theorem Fermat", thms[0].DisplayLabel)
	assert.True(t, thms[0].Titled)
	assert.Equal(t, "No solutions.", thms[0].Content)
}

func TestExtract_LabelIsRemovedFromContent(t *testing.T) {
	src := `\begin{theorem}\label{main-result}Every bounded sequence converges.\end{theorem}`

	thms := Extract(src)
	require.Len(t, thms, 1)
	assert.Equal(t, "main-result", thms[0].Label)
	assert.Equal(t, "Every bounded sequence converges.", thms[0].Content)
	assert.Equal(t, "Theorem 1", thms[0].DisplayLabel)
}

func TestExtract_NumberFromLabel(t *testing.T) {
	src := `\begin{theorem}\label{thm:3.2}Statement.\end{theorem}`

	thms := Extract(src)
	require.Len(t, thms, 1)
	assert.Equal(t, "Theorem 3.2", thms[0].DisplayLabel)
}

func TestExtract_NumberFromTextMention(t *testing.T) {
	src := `As we show in Theorem 4, the bound is sharp.
\begin{theorem}The bound is sharp.\end{theorem}`

	thms := Extract(src)
	require.Len(t, thms, 1)
	assert.Equal(t, "4", thms[0].Number)
}

func TestExtract_SectionNumbering(t *testing.T) {
	src := `\numberwithin{theorem}{section}
\section{Intro}
\begin{theorem}A.\end{theorem}
\section{Results}
\begin{theorem}B.\end{theorem}`

	thms := Extract(src)
	assert.Equal(t, []string{"Theorem 1.1", "Theorem 2.2"}, displayLabels(thms))
}

func TestExtract_CustomEnvironments(t *testing.T) {
	src := `\newtheorem{thm}{Theorem}
\newtheorem{lem}{Lemma}
\begin{lem}Not extracted.\end{lem}
\begin{thm}[Main]Extracted.\end{thm}`

	thms := Extract(src)
	require.Len(t, thms, 1)
	assert.Equal(t, "thm", thms[0].Env)
	assert.Equal(t, "Theorem Main", thms[0].DisplayLabel)
}

func TestExtract_DeduplicatesAndSorts(t *testing.T) {
	src := `\newtheorem{mythm}{Theorem}
\begin{mythm}Later.\end{mythm}
\begin{theorem}[Named]Titled.\end{theorem}
\begin{theorem}Plain.\end{theorem}`

	thms := Extract(src)
	require.Len(t, thms, 3)
	assert.Equal(t, []string{"Later.", "Titled.", "Plain."}, []string{thms[0].Content, thms[1].Content, thms[2].Content})
	assert.True(t, thms[1].Titled)

	ends := map[int]bool{}
	for _, thm := range thms {
		assert.False(t, ends[thm.End], "duplicate end offset %d", thm.End)
		ends[thm.End] = true
	}
}

func TestExtract_None(t *testing.T) {
	assert.Empty(t, Extract(`\section{Intro} Nothing here.`))
}
