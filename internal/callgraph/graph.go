package callgraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
)

// Node is a declared subroutine.
type Node struct {
	ID string `json:"id"`
}

// Link is a call from Source to Target. Both ends are always nodes.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph holds nodes in declaration order and links in scan order.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`

	index map[string]bool
}

func (g *Graph) addNode(name string) {
	if g.index == nil {
		g.index = make(map[string]bool)
	}
	if g.index[name] {
		return
	}
	g.index[name] = true
	g.Nodes = append(g.Nodes, Node{ID: name})
}

// HasNode reports whether name is a declared subroutine.
func (g *Graph) HasNode(name string) bool {
	if g.index != nil {
		return g.index[name]
	}
	for _, n := range g.Nodes {
		if n.ID == name {
			return true
		}
	}
	return false
}

// Callees returns the distinct targets called from name, in first-call order.
func (g *Graph) Callees(name string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range g.Links {
		if l.Source == name && !seen[l.Target] {
			seen[l.Target] = true
			out = append(out, l.Target)
		}
	}
	return out
}

// Callers returns the distinct subroutines that call name, in first-call
// order. A recursive call does not make name its own caller.
func (g *Graph) Callers(name string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range g.Links {
		if l.Target == name && l.Source != name && !seen[l.Source] {
			seen[l.Source] = true
			out = append(out, l.Source)
		}
	}
	return out
}

// Roots returns nodes that no other subroutine calls. These are the macros a
// user or event runs directly.
func (g *Graph) Roots() []string {
	called := make(map[string]bool)
	for _, l := range g.Links {
		if l.Source != l.Target {
			called[l.Target] = true
		}
	}
	var out []string
	for _, n := range g.Nodes {
		if !called[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}

// DataJS renders the graph as the `data.js` script consumed by the flow
// diagram: two const arrays of node and link records.
func (g *Graph) DataJS() string {
	nodes := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		nodes[i] = fmt.Sprintf("{ id: '%s' }", n.ID)
	}
	links := make([]string, len(g.Links))
	for i, l := range g.Links {
		links[i] = fmt.Sprintf("{ source: '%s', target: '%s' }", l.Source, l.Target)
	}
	return fmt.Sprintf("const nodes = [\n%s\n];\n\nconst links = [\n%s\n];\n",
		strings.Join(nodes, ",\n"), strings.Join(links, ",\n"))
}

// JSON renders the graph as indented JSON with empty arrays, never null.
func (g *Graph) JSON() ([]byte, error) {
	out := struct {
		Nodes []Node `json:"nodes"`
		Links []Link `json:"links"`
	}{Nodes: g.Nodes, Links: g.Links}
	if out.Nodes == nil {
		out.Nodes = []Node{}
	}
	if out.Links == nil {
		out.Links = []Link{}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

var flowTemplate = template.Must(template.New("flow").Parse(flowHTML))

// HTML renders a self-contained flow diagram page embedding the graph data.
func (g *Graph) HTML(title string) ([]byte, error) {
	var buf bytes.Buffer
	err := flowTemplate.Execute(&buf, struct {
		Title string
		Data  template.JS
		Nodes int
		Links int
	}{
		Title: title,
		Data:  template.JS(g.DataJS()),
		Nodes: len(g.Nodes),
		Links: len(g.Links),
	})
	if err != nil {
		return nil, fmt.Errorf("could not render flow diagram: %w", err)
	}
	return buf.Bytes(), nil
}

const flowHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.Title}} - Process Flow</title>
<style>
  body { font-family: 'Segoe UI', Tahoma, sans-serif; margin: 0; background: #f5f6f8; }
  header { padding: 12px 20px; background: #2c3e50; color: #fff; }
  header .meta { font-size: 13px; color: #bdc3c7; }
  svg { width: 100%; height: calc(100vh - 60px); }
  .link { stroke: #95a5a6; stroke-width: 1.5px; fill: none; marker-end: url(#arrow); }
  .node circle { fill: #3498db; stroke: #fff; stroke-width: 2px; }
  .node text { font-size: 12px; fill: #2c3e50; }
</style>
</head>
<body>
<header>
  <strong>{{.Title}}</strong>
  <div class="meta">{{.Nodes}} subroutines, {{.Links}} calls</div>
</header>
<svg id="flow"><defs><marker id="arrow" viewBox="0 -5 10 10" refX="18" refY="0" markerWidth="6" markerHeight="6" orient="auto"><path d="M0,-5L10,0L0,5" fill="#95a5a6"/></marker></defs></svg>
<script src="https://d3js.org/d3.v7.min.js"></script>
<script>
{{.Data}}
const svg = d3.select("#flow");
const width = svg.node().clientWidth, height = svg.node().clientHeight;
const sim = d3.forceSimulation(nodes)
  .force("link", d3.forceLink(links).id(d => d.id).distance(120))
  .force("charge", d3.forceManyBody().strength(-300))
  .force("center", d3.forceCenter(width / 2, height / 2));
const link = svg.append("g").selectAll("path").data(links).join("path").attr("class", "link");
const node = svg.append("g").selectAll("g").data(nodes).join("g").attr("class", "node")
  .call(d3.drag()
    .on("start", (e, d) => { if (!e.active) sim.alphaTarget(0.3).restart(); d.fx = d.x; d.fy = d.y; })
    .on("drag", (e, d) => { d.fx = e.x; d.fy = e.y; })
    .on("end", (e, d) => { if (!e.active) sim.alphaTarget(0); d.fx = null; d.fy = null; }));
node.append("circle").attr("r", 9);
node.append("text").attr("x", 12).attr("y", 4).text(d => d.id);
sim.on("tick", () => {
  link.attr("d", d => d.source === d.target
    ? ` + "`" + `M${d.source.x},${d.source.y} a20,20 0 1,1 1,0` + "`" + `
    : ` + "`" + `M${d.source.x},${d.source.y} L${d.target.x},${d.target.y}` + "`" + `);
  node.attr("transform", d => ` + "`" + `translate(${d.x},${d.y})` + "`" + `);
});
</script>
</body>
</html>
`
