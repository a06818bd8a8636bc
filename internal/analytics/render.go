package analytics

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"Sitecat/internal/models"
)

const codeVersion = "H.20.3"

// Order and collector names of the optional s.* variables
var textFields = []struct {
	field models.Field
	name  string
}{
	{models.FieldPageName, "pageName"},
	{models.FieldPageType, "pageType"},
	{models.FieldReferrer, "referrer"},
	{models.FieldTransactionID, "transactionID"},
	{models.FieldState, "state"},
	{models.FieldZip, "zip"},
}

// Render returns the tracking block for the current state
func (t *Tracker) Render() string {
	lines := []string{
		"<!-- SiteCatalyst code version: " + codeVersion,
		"Copyright 1997-2009 Omniture, Inc. More info available at",
		"http://www.omniture.com -->",
		`<script type="text/javascript">`,
		"  var s_account=" + t.quote(t.account) + ";",
		"</script>",
	}

	if t.includeJavascript {
		for _, src := range t.scriptPaths() {
			lines = append(lines, fmt.Sprintf(`<script type="text/javascript" src="%s"></script>`, html.EscapeString(src)))
		}
	}

	lines = append(lines, `<script type="text/javascript"><!--`)

	for _, f := range textFields {
		if v, ok := t.fields[f.field]; ok {
			lines = append(lines, "s."+f.name+"="+t.quote(v)+";")
		}
	}

	events := t.Events()
	names := make([]string, len(events))
	for i, n := range events {
		names[i] = "event" + strconv.Itoa(n)
	}
	lines = append(lines, "s.events="+t.quote(strings.Join(names, ","))+";")

	for _, n := range sortedKeys(t.props) {
		lines = append(lines, fmt.Sprintf("s.prop%d=%s;", n, t.quote(t.props[n])))
	}
	for _, n := range sortedKeys(t.eVars) {
		lines = append(lines, fmt.Sprintf("s.eVar%d=%s;", n, t.quote(t.eVars[n])))
	}

	lines = append(lines,
		"/************* DO NOT ALTER ANYTHING BELOW THIS LINE ! **************/",
		"var s_code=s.t();if(s_code)document.write(s_code)//--></script>",
		"<!-- End SiteCatalyst code version: "+codeVersion+" -->",
	)

	return strings.Join(lines, "\n")
}

// Insert returns content with the tracking block spliced in at the
// configured position, or appended when the anchor tag is missing.
func (t *Tracker) Insert(content string) string {
	block := t.Render()

	splice, ok := splicers[t.insertion]
	if !ok {
		splice = splicers[models.PositionBottom]
	}
	if out, ok := splice(content, block); ok {
		return out
	}
	return content + block
}

// quote wraps a value for the script block. Values are emitted verbatim
// unless escaping is enabled.
func (t *Tracker) quote(v string) string {
	if !t.escapeValues {
		return `"` + v + `"`
	}
	// json.Marshal also escapes <, > and &, so "</script>" cannot close the block
	b, _ := json.Marshal(v)
	return string(b)
}

func (t *Tracker) scriptPaths() []string {
	paths := make([]string, 0, len(t.scripts)+1)
	for _, s := range t.scripts {
		paths = append(paths, t.assetPath(s))
	}
	return append(paths, t.assetPath(t.sCodePath))
}

func (t *Tracker) assetPath(p string) string {
	if strings.HasPrefix(p, "/") || strings.Contains(p, "://") {
		return p
	}
	return strings.TrimRight(t.assetBasePath, "/") + "/" + p
}

type spliceFunc func(content, block string) (string, bool)

var splicers = map[models.Position]spliceFunc{
	models.PositionTop:    spliceTop,
	models.PositionBottom: spliceBottom,
}

var (
	bodyOpenTag  = regexp.MustCompile(`(?i)<body[^>]*>`)
	bodyCloseTag = regexp.MustCompile(`(?i)</body>`)
)

func spliceTop(content, block string) (string, bool) {
	loc := bodyOpenTag.FindStringIndex(content)
	if loc == nil {
		return content, false
	}
	return content[:loc[1]] + "\n" + block + "\n" + content[loc[1]:], true
}

func spliceBottom(content, block string) (string, bool) {
	loc := bodyCloseTag.FindStringIndex(content)
	if loc == nil {
		return content, false
	}
	return content[:loc[0]] + "\n" + block + "\n" + content[loc[0]:], true
}
