package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"claude-diagnose/internal/model"
)

// categoryColors give each syscall category a stable hue in the flamegraph.
var categoryColors = map[string]string{
	"file":    "#e5554e",
	"network": "#4e79e5",
	"memory":  "#9b59b6",
	"process": "#e5a34e",
	"event":   "#4ec977",
	"time":    "#46b8b0",
	"ipc":     "#d4c24a",
	"other":   "#9aa0a6",
}

const (
	svgWidth    = 1200
	svgMargin   = 10
	frameHeight = 22
	minLabelPx  = 40
)

// FoldedPath derives the collapsed-stack sibling for an SVG path: same
// basename, .folded extension.
func FoldedPath(svgPath string) string {
	return strings.TrimSuffix(svgPath, filepath.Ext(svgPath)) + ".folded"
}

// WriteFlamegraph renders the call tree as SVG at path and writes the folded
// companion next to it.
func WriteFlamegraph(tree *model.CallTreeNode, title, path, folded string) error {
	svg := RenderFlamegraphSVG(tree, title)
	if err := os.WriteFile(path, []byte(svg), 0o644); err != nil {
		return fmt.Errorf("write flamegraph: %w", err)
	}
	if err := os.WriteFile(FoldedPath(path), []byte(folded), 0o644); err != nil {
		return fmt.Errorf("write folded stacks: %w", err)
	}
	return nil
}

// RenderFlamegraphSVG draws the fixed two-level tree: a root bar, category
// bars, and syscall bars, widths proportional to call counts. Every bar
// carries a hover title and click-to-zoom rescaling. An empty tree renders a
// placeholder instead of erroring.
func RenderFlamegraphSVG(tree *model.CallTreeNode, title string) string {
	total := treeWeight(tree)
	if tree == nil || total == 0 {
		return placeholderSVG(title)
	}

	height := svgMargin*2 + 30 + frameHeight*3
	usable := float64(svgWidth - 2*svgMargin)

	var b strings.Builder
	writeSVGHeader(&b, height, fmt.Sprintf("%s - %d syscalls", title, total))

	y := svgMargin + 30
	writeFrame(&b, float64(svgMargin), float64(y), usable, "all syscalls", "#7a7f87", total, total)

	y += frameHeight
	x := float64(svgMargin)
	for _, cat := range tree.Children {
		catWeight := treeWeight(cat)
		catWidth := usable * float64(catWeight) / float64(total)
		writeFrame(&b, x, float64(y), catWidth, cat.Label, colorFor(cat.Category), catWeight, total)

		leafY := y + frameHeight
		leafX := x
		for _, leaf := range cat.Children {
			leafWidth := usable * float64(leaf.SelfWeight) / float64(total)
			writeFrame(&b, leafX, float64(leafY), leafWidth, leaf.Label, colorFor(leaf.Category), leaf.SelfWeight, total)
			leafX += leafWidth
		}
		x += catWidth
	}

	b.WriteString(zoomScript)
	b.WriteString("</svg>\n")
	return b.String()
}

func writeSVGHeader(b *strings.Builder, height int, heading string) {
	fmt.Fprintf(b, `<?xml version="1.0" standalone="no"?>
<svg version="1.1" width="%d" height="%d" viewBox="0 0 %d %d" xmlns="http://www.w3.org/2000/svg">
<style>
  text { font-family: monospace; font-size: 12px; fill: #1c1e21; pointer-events: none; }
  .heading { font-size: 15px; font-weight: bold; }
  .frame rect { stroke: #ffffff; stroke-width: 0.5; cursor: pointer; }
  .frame rect:hover { stroke: #1c1e21; }
</style>
<text x="%d" y="22" class="heading">%s</text>
`, svgWidth, height, svgWidth, height, svgMargin, escapeXML(heading))
}

// writeFrame emits one bar with its hover title. Labels are dropped on bars
// too narrow to hold text; the title still identifies them.
func writeFrame(b *strings.Builder, x, y, width float64, label, color string, weight, total int64) {
	if width <= 0 {
		return
	}
	pct := float64(weight) / float64(total) * 100
	fmt.Fprintf(b, `<g class="frame" onclick="zoom(this)" data-x="%.2f" data-w="%.2f">
<title>%s: %d calls (%.1f%%)</title>
<rect x="%.2f" y="%.2f" width="%.2f" height="%d" fill="%s"/>
`, x, width, escapeXML(label), weight, pct, x, y, width, frameHeight-1, color)
	if width >= minLabelPx {
		fmt.Fprintf(b, `<text x="%.2f" y="%.2f">%s</text>
`, x+4, y+float64(frameHeight)-8, escapeXML(clipLabel(label, width)))
	}
	b.WriteString("</g>\n")
}

// zoomScript rescales the x axis so the clicked frame spans the full width;
// clicking the background resets.
var zoomScript = `<script><![CDATA[
function zoom(g) {
  var x = parseFloat(g.getAttribute('data-x'));
  var w = parseFloat(g.getAttribute('data-w'));
  var total = ` + fmt.Sprint(svgWidth-2*svgMargin) + `;
  var scale = total / w;
  var frames = document.getElementsByClassName('frame');
  for (var i = 0; i < frames.length; i++) {
    var fx = parseFloat(frames[i].getAttribute('data-x'));
    frames[i].setAttribute('transform',
      'translate(' + ((fx - x) * scale - fx + ` + fmt.Sprint(svgMargin) + `) + ',0) scale(' + scale + ',1)');
  }
}
document.documentElement.addEventListener('dblclick', function () {
  var frames = document.getElementsByClassName('frame');
  for (var i = 0; i < frames.length; i++) frames[i].removeAttribute('transform');
});
]]></script>
`

// placeholderSVG stands in when the trace captured nothing; the report
// carries the matching low-severity diagnosis.
func placeholderSVG(title string) string {
	return fmt.Sprintf(`<?xml version="1.0" standalone="no"?>
<svg version="1.1" width="%d" height="80" xmlns="http://www.w3.org/2000/svg">
<style>text { font-family: monospace; font-size: 14px; fill: #5f6368; }</style>
<text x="%d" y="30">%s</text>
<text x="%d" y="55">no syscall data captured</text>
</svg>
`, svgWidth, svgMargin, escapeXML(title), svgMargin)
}

func colorFor(category string) string {
	if c, ok := categoryColors[category]; ok {
		return c
	}
	return categoryColors["other"]
}

func treeWeight(n *model.CallTreeNode) int64 {
	if n == nil {
		return 0
	}
	w := n.SelfWeight
	for _, c := range n.Children {
		w += treeWeight(c)
	}
	return w
}

// clipLabel trims a label to roughly what fits in width pixels of monospace.
func clipLabel(label string, width float64) string {
	maxChars := int(width / 7)
	if maxChars < 2 || len(label) <= maxChars {
		return label
	}
	if maxChars <= 2 {
		return ".."
	}
	return label[:maxChars-2] + ".."
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
