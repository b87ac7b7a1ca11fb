package actuator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDump = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node index="0" text="" resource-id="" class="android.widget.FrameLayout" package="com.example" bounds="[0,0][1080,2400]" enabled="true">
    <node index="0" text="" resource-id="com.example:id/row_1" class="android.widget.LinearLayout" package="com.example" bounds="[0,100][1080,200]" enabled="true">
      <node index="0" text="Wi-Fi" resource-id="com.example:id/title" class="android.widget.TextView" package="com.example" bounds="[0,100][540,200]" enabled="true" />
      <node index="1" text="" resource-id="com.example:id/toggle" class="android.widget.Switch" package="com.example" bounds="[900,120][1040,180]" enabled="true" clickable="true" checkable="true" checked="true" />
    </node>
    <node index="1" text="" resource-id="com.example:id/row_2" class="android.widget.LinearLayout" package="com.example" bounds="[0,200][1080,300]" enabled="true">
      <node index="0" text="Bluetooth" resource-id="com.example:id/title" class="android.widget.TextView" package="com.example" bounds="[0,200][540,300]" enabled="true" />
      <node index="1" text="" resource-id="com.example:id/toggle" class="android.widget.Switch" package="com.example" bounds="[900,220][1040,280]" enabled="false" clickable="true" checkable="true" checked="false" />
    </node>
    <node index="2" text="OK" resource-id="com.example:id/ok" class="android.widget.Button" package="com.example" content-desc="confirm" bounds="[400,2200][680,2320]" enabled="true" clickable="true" focused="true" />
  </node>
</hierarchy>`

func mustParse(t *testing.T) *Hierarchy {
	t.Helper()
	h, err := ParseHierarchy(sampleDump)
	require.NoError(t, err)
	return h
}

func TestParseHierarchy(t *testing.T) {
	h := mustParse(t)
	assert.Equal(t, 8, h.Len())

	_, err := ParseHierarchy("<not-closed")
	assert.Error(t, err)
}

func TestFindByKind(t *testing.T) {
	h := mustParse(t)

	els, err := h.Find(Selector{Kind: ByID, Value: "com.example:id/title"})
	require.NoError(t, err)
	require.Len(t, els, 2)
	assert.Equal(t, "Wi-Fi", els[0].Text)
	assert.Equal(t, "Bluetooth", els[1].Text)

	el, err := h.First(Selector{Kind: ByText, Value: "OK"})
	require.NoError(t, err)
	require.NotNil(t, el)
	assert.Equal(t, "android.widget.Button", el.ClassName)
	assert.Equal(t, "confirm", el.ContentDesc)
	assert.Equal(t, Rect{Left: 400, Top: 2200, Right: 680, Bottom: 2320}, el.Bounds)
	assert.Equal(t, Point{X: 540, Y: 2260}, el.Bounds.Center())
	assert.True(t, el.Clickable)
	assert.True(t, el.Focused)
	assert.False(t, el.Checked)

	els, err = h.Find(Selector{Kind: ByClass, Value: "android.widget.Switch"})
	require.NoError(t, err)
	assert.Len(t, els, 2)
}

func TestFindMissing(t *testing.T) {
	h := mustParse(t)
	el, err := h.First(Selector{Kind: ByText, Value: "Nope"})
	require.NoError(t, err)
	assert.Nil(t, el)

	el, err = h.First(Selector{Kind: ByText, Value: ""})
	require.NoError(t, err)
	assert.Nil(t, el)
}

func TestFindXPath(t *testing.T) {
	h := mustParse(t)

	els, err := h.Find(Selector{Kind: ByXPath, Value: "//android.widget.Button[@text='OK']"})
	require.NoError(t, err)
	require.Len(t, els, 1)
	assert.Equal(t, "com.example:id/ok", els[0].ResourceID)

	els, err = h.Find(Selector{Kind: ByXPath, Value: "//*[@resource-id='com.example:id/toggle']"})
	require.NoError(t, err)
	assert.Len(t, els, 2)

	_, err = h.Find(Selector{Kind: ByXPath, Value: "//node[@text='unterminated]"})
	assert.Error(t, err)
}

func TestParentConstraint(t *testing.T) {
	h := mustParse(t)
	el, err := h.First(Selector{
		Kind:   ByID,
		Value:  "com.example:id/toggle",
		Parent: &Selector{Kind: ByID, Value: "com.example:id/row_2"},
	})
	require.NoError(t, err)
	require.NotNil(t, el)
	assert.False(t, el.Enabled)
}

func TestSiblingConstraint(t *testing.T) {
	h := mustParse(t)
	sel := Selector{
		Kind:    ByClass,
		Value:   "android.widget.Switch",
		Sibling: &Selector{Kind: ByText, Value: "Wi-Fi"},
	}
	el, err := h.First(sel)
	require.NoError(t, err)
	require.NotNil(t, el)
	assert.True(t, el.Checked)

	// The label precedes the switch, so "after" finds nothing.
	sel.SiblingRelation = "after"
	el, err = h.First(sel)
	require.NoError(t, err)
	assert.Nil(t, el)

	sel.SiblingRelation = "before"
	el, err = h.First(sel)
	require.NoError(t, err)
	assert.NotNil(t, el)
}

func TestParseBounds(t *testing.T) {
	r, err := ParseBounds("[1,2][30,40]")
	require.NoError(t, err)
	assert.Equal(t, Rect{1, 2, 30, 40}, r)
	assert.Equal(t, "[1,2][30,40]", r.String())
	assert.True(t, r.Contains(Point{X: 1, Y: 2}))
	assert.False(t, r.Contains(Point{X: 30, Y: 2}))

	_, err = ParseBounds("1,2,3,4")
	assert.Error(t, err)
}

func TestSelectorString(t *testing.T) {
	sel := Selector{Kind: ByText, Value: "Go", Sibling: &Selector{Kind: ByID, Value: "x"}, SiblingRelation: "before"}
	assert.Equal(t, `text:"Go" sibling=id:"x"(before)`, sel.String())
}

func TestPoll(t *testing.T) {
	calls := 0
	ok, err := Poll(context.Background(), time.Second, time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, calls)

	ok, err = Poll(context.Background(), 0, time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.False(t, ok)

	boom := errors.New("boom")
	_, err = Poll(context.Background(), time.Second, time.Millisecond, func(context.Context) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}
