package session

import (
	"encoding/json"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/promptkit/promptkit/parts"
)

func text(s string) []parts.Part { return []parts.Part{parts.Text(s)} }

// TestHistory_EvictsOldest tests eviction once the limit is exceeded.
func TestHistory_EvictsOldest(t *testing.T) {
	h := NewHistory(2)

	h.AskText("hi").ReplyText("hello").AskText("bye")

	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 3, h.TurnCount())

	turns := h.Turns()
	assert.Equal(t, RoleModel, turns[0].Role)
	assert.Equal(t, parts.Parts{parts.Text("hello")}, turns[0].Parts)
	assert.Equal(t, RoleUser, turns[1].Role)
	assert.Equal(t, parts.Parts{parts.Text("bye")}, turns[1].Parts)
}

// TestHistory_MergesSameRole tests that a repeated role merges instead of appending.
func TestHistory_MergesSameRole(t *testing.T) {
	h := NewHistory(10)

	h.AddUserTurn(text("a"))
	h.AddUserTurn(text("b"))

	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 1, h.TurnCount())
	got, ok := h.LastParts()
	require.True(t, ok)
	assert.Equal(t, []parts.Part{parts.Text("ab")}, got)
}

// TestHistory_StitchesStream tests that streamed model chunks form one turn.
func TestHistory_StitchesStream(t *testing.T) {
	h := NewHistory(10)
	h.AskText("draw a cat")

	for _, chunk := range [][]parts.Part{
		text("Here "),
		text("it is"),
		{parts.InlineData{MimeType: "image/png", Data: "aGVs"}},
		{parts.InlineData{MimeType: "image/png", Data: "bG8="}},
	} {
		h.AddModelTurn(chunk)
	}

	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 2, h.TurnCount())
	got, _ := h.LastParts()
	assert.Equal(t, []parts.Part{
		parts.Text("Here it is"),
		parts.InlineData{MimeType: "image/png", Data: "aGVsbG8="},
	}, got)
}

// TestHistory_Invariants drives random operation sequences and checks the
// adjacency and capacity invariants after every step.
func TestHistory_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, limit := range []int{0, 1, 2, 3, 5} {
		h := NewHistory(limit)
		appended := 0
		for step := 0; step < 200; step++ {
			before := h.Len()
			var lastRole Role
			if turns := h.Turns(); len(turns) > 0 {
				lastRole = turns[len(turns)-1].Role
			}

			role := RoleUser
			if rng.Intn(2) == 0 {
				role = RoleModel
			}
			if role == RoleUser {
				h.AskText("u")
			} else {
				h.ReplyText("m")
			}
			if before == 0 || lastRole != role {
				appended++
			}

			turns := h.Turns()
			require.LessOrEqual(t, len(turns), limit)
			for i := 1; i < len(turns); i++ {
				require.NotEqual(t, turns[i-1].Role, turns[i].Role)
			}
			require.Equal(t, appended, h.TurnCount())
		}
	}
}

// TestHistory_MergeKeepsOrder tests that merging never loses or duplicates content.
func TestHistory_MergeKeepsOrder(t *testing.T) {
	h := NewHistory(4)
	h.AddModelTurn([]parts.Part{parts.Text("a"), parts.FileData{FileURL: "gs://x"}})
	h.AddModelTurn([]parts.Part{parts.Text("b"), parts.Text("c")})

	got, _ := h.LastParts()
	assert.Equal(t, []parts.Part{
		parts.Text("a"),
		parts.FileData{FileURL: "gs://x"},
		parts.Text("bc"),
	}, got)
}

// TestHistory_IngestReply tests remembered and discarded replies.
func TestHistory_IngestReply(t *testing.T) {
	h := NewHistory(10)
	h.AskText("q1")

	merged, ok := h.IngestReply(text("a1"))
	require.True(t, ok)
	assert.Equal(t, text("a1"), merged)
	assert.Equal(t, 2, h.Len())

	h.SetRememberReply(false).AskText("scratch question")
	assert.False(t, h.RememberReply())
	assert.Equal(t, 3, h.Len())

	merged, ok = h.IngestReply(text("scratch answer"))
	assert.False(t, ok)
	assert.Nil(t, merged)
	assert.Equal(t, 2, h.Len())
	last, _ := h.LastText("")
	assert.Equal(t, "a1", last)
}

// TestHistory_IngestReplyMerges tests that a reply following a partial reply merges.
func TestHistory_IngestReplyMerges(t *testing.T) {
	h := NewHistory(10)
	h.AskText("q").ReplyText("par")

	merged, ok := h.IngestReply(text("tial"))
	require.True(t, ok)
	assert.Equal(t, text("partial"), merged)
	assert.Equal(t, 2, h.TurnCount())
}

// TestHistory_ForgetLastExchange tests retraction of pairs and dangling questions.
func TestHistory_ForgetLastExchange(t *testing.T) {
	h := NewHistory(10)
	h.AskText("q1").ReplyText("a1").AskText("q2").ReplyText("a2")

	h.ForgetLastExchange()
	assert.Equal(t, 2, h.Len())
	last, _ := h.LastText("")
	assert.Equal(t, "a1", last)

	h.AskText("dangling")
	h.ForgetLastExchange()
	assert.Equal(t, 2, h.Len())

	h.ForgetLastExchange()
	assert.Equal(t, 0, h.Len())

	h.ForgetLastExchange()
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 5, h.TurnCount())
}

// TestHistory_Lookup tests indexed access from the end.
func TestHistory_Lookup(t *testing.T) {
	h := NewHistory(10)

	_, ok := h.LastParts()
	assert.False(t, ok)
	_, ok = h.LastText("\n")
	assert.False(t, ok)

	h.AskText("q").AddModelTurn([]parts.Part{parts.Text("x"), parts.InlineData{Data: "AA=="}, parts.Text("y")})

	got, ok := h.Parts(2)
	require.True(t, ok)
	assert.Equal(t, text("q"), got)

	for _, n := range []int{0, 3, -1, 100} {
		_, ok = h.Parts(n)
		assert.False(t, ok, "n=%d", n)
	}

	s, ok := h.LastText("\n")
	require.True(t, ok)
	assert.Equal(t, "x\ny\n", s)
}

// TestHistory_LastTextWritesSeparatorAfterEachPart tests separator placement.
func TestHistory_LastTextWritesSeparatorAfterEachPart(t *testing.T) {
	h := NewHistory(10)
	h.AskText("a")
	require.True(t, h.EditParts(1, func(ps []parts.Part) []parts.Part {
		return append(ps, parts.Text("b"))
	}))

	s, ok := h.LastText("\n")
	require.True(t, ok)
	assert.Equal(t, "a\nb\n", s)

	h.AddModelTurn([]parts.Part{parts.InlineData{MimeType: "image/png", Data: "AA=="}})
	s, ok = h.LastText("\n")
	require.True(t, ok)
	assert.Equal(t, "", s)
}

// TestHistory_LimitDuringDecode tests that Limit can be read while a snapshot
// is decoded into the same history.
func TestHistory_LimitDuringDecode(t *testing.T) {
	h := NewHistory(3)
	snap := []byte(`{"history":[],"history_limit":7,"chat_no":0,"remember_reply":true}`)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = json.Unmarshal(snap, h)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			l := h.Limit()
			assert.True(t, l == 3 || l == 7, "limit=%d", l)
		}
	}()
	wg.Wait()
	assert.Equal(t, 7, h.Limit())
}

// TestHistory_EditParts tests mutable access to a stored turn.
func TestHistory_EditParts(t *testing.T) {
	h := NewHistory(10)
	h.AskText("q").ReplyText("a")

	ok := h.EditParts(2, func(ps []parts.Part) []parts.Part {
		return append(ps, parts.FileData{FileURL: "gs://doc"})
	})
	require.True(t, ok)

	got, _ := h.Parts(2)
	assert.Equal(t, []parts.Part{parts.Text("q"), parts.FileData{FileURL: "gs://doc"}}, got)

	assert.False(t, h.EditParts(3, func(ps []parts.Part) []parts.Part { return ps }))
}

// TestHistory_CopiesAreDetached tests that returned slices do not alias storage.
func TestHistory_CopiesAreDetached(t *testing.T) {
	h := NewHistory(10)
	in := text("q")
	h.AddUserTurn(in)
	in[0] = parts.Text("changed")

	got, _ := h.LastParts()
	got[0] = parts.Text("also changed")

	again, _ := h.LastParts()
	assert.Equal(t, text("q"), again)
}

// TestHistory_Concurrent tests that concurrent writers keep the invariants.
func TestHistory_Concurrent(t *testing.T) {
	h := NewHistory(6)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if (i+j)%2 == 0 {
					h.AskText("u")
				} else {
					h.ReplyText("m")
				}
			}
		}(i)
	}
	wg.Wait()

	turns := h.Turns()
	assert.LessOrEqual(t, len(turns), 6)
	for i := 1; i < len(turns); i++ {
		assert.NotEqual(t, turns[i-1].Role, turns[i].Role)
	}
}

// TestHistory_JSONRoundTrip tests the session snapshot form.
func TestHistory_JSONRoundTrip(t *testing.T) {
	h := NewHistory(3)
	h.AskText("q1").ReplyText("a1").AskText("q2").ReplyText("a2")
	h.SetRememberReply(false)

	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"history": [
			{"role":"model","parts":[{"text":"a1"}]},
			{"role":"user","parts":[{"text":"q2"}]},
			{"role":"model","parts":[{"text":"a2"}]}
		],
		"history_limit": 3,
		"chat_no": 4,
		"remember_reply": false
	}`, string(data))

	restored, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, h.Turns(), restored.Turns())
	assert.Equal(t, 3, restored.Limit())
	assert.Equal(t, 4, restored.TurnCount())
	assert.False(t, restored.RememberReply())

	restored.AskText("q3")
	assert.Equal(t, 3, restored.Len())
	assert.Equal(t, 5, restored.TurnCount())
}

// TestDecode_RejectsBrokenSnapshots tests that invariant violations fail decoding.
func TestDecode_RejectsBrokenSnapshots(t *testing.T) {
	cases := map[string]string{
		"malformed":     `{"history": [`,
		"unknown role":  `{"history":[{"role":"system","parts":[]}],"history_limit":2,"chat_no":1}`,
		"missing role":  `{"history":[{"parts":[]}],"history_limit":2,"chat_no":1}`,
		"over limit":    `{"history":[{"role":"user","parts":[]},{"role":"model","parts":[]}],"history_limit":1,"chat_no":2}`,
		"adjacent role": `{"history":[{"role":"user","parts":[]},{"role":"user","parts":[]}],"history_limit":5,"chat_no":2}`,
		"low count":     `{"history":[{"role":"user","parts":[]}],"history_limit":5,"chat_no":0}`,
		"bad part":      `{"history":[{"role":"user","parts":[{"nope":1}]}],"history_limit":5,"chat_no":1}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(in))
			assert.Error(t, err)
		})
	}
}

// TestContents tests conversion of turns to SDK contents.
func TestContents(t *testing.T) {
	h := NewHistory(4)
	h.AskText("q").AddModelTurn([]parts.Part{parts.InlineData{MimeType: "image/png", Data: "aGk="}})

	contents, err := Contents(h.Turns())
	require.NoError(t, err)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "q", contents[0].Parts[0].Text)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, []byte("hi"), contents[1].Parts[0].InlineData.Data)

	h.AskText("x").EditParts(1, func([]parts.Part) []parts.Part {
		return []parts.Part{parts.InlineData{Data: "!!"}}
	})
	_, err = Contents(h.Turns())
	assert.Error(t, err)
}
