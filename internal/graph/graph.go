// Package graph lowers a resolved build plan into a ninja-syntax
// build-graph file: per-invocation rules, explicit/implicit dependency
// edges derived from upstream outputs, hard-link and directory
// materialisation rules, and dep-info depfile directives.
package graph

import "sort"

// Rule is a ninja rule declaration.
type Rule struct {
	ID          string
	Command     string
	Description string
	Depfile     string
	DepsGCC     bool
}

// Edge is a ninja build-edge declaration.
type Edge struct {
	Outputs       []string
	RuleID        string
	ExplicitDeps  []string
	ImplicitDeps  []string
	OrderOnlyDeps []string
}

// Graph is the fully lowered build graph, ready to render to ninja syntax.
type Graph struct {
	Rules []Rule
	Edges []Edge

	ruleIDs map[string]bool
	markers map[string]bool // deduplicated directory-marker paths
}

func newGraph() *Graph {
	return &Graph{ruleIDs: map[string]bool{}, markers: map[string]bool{}}
}

func (g *Graph) addRule(r Rule) {
	if g.ruleIDs[r.ID] {
		return
	}
	g.ruleIDs[r.ID] = true
	g.Rules = append(g.Rules, r)
}

func (g *Graph) addEdge(e Edge) {
	g.Edges = append(g.Edges, e)
}

const hardLinkRulePOSIX = "hardlink"
const hardLinkRuleWindows = "hardlink"
const dirRule = "mkdir_marker"

func declareAuxiliaryRules(g *Graph, windows bool) {
	if windows {
		g.addRule(Rule{
			ID:          hardLinkRuleWindows,
			Command:     "cmd /c mklink /h $out $in",
			Description: "hardlink $out",
		})
	} else {
		g.addRule(Rule{
			ID:          hardLinkRulePOSIX,
			Command:     "ln -f $in $out",
			Description: "hardlink $out",
		})
	}
	g.addRule(Rule{
		ID:          dirRule,
		Command:     "mkdir -p $$(dirname $out) && touch $out",
		Description: "mkdir $out",
	})
}

const regenRule = "regen"

// AddRegenerationRule prepends a self-regeneration edge: command
// re-invokes the generator itself, and the edge's explicit deps are the
// plan's manifest inputs, so a manifest edit triggers a fresh build.ninja
// before ninja proceeds with anything else.
func (g *Graph) AddRegenerationRule(command, output string, manifestInputs []string) {
	rule := Rule{ID: regenRule, Command: command, Description: "regenerating build graph"}
	g.Rules = append([]Rule{rule}, g.Rules...)
	g.Edges = append([]Edge{{Outputs: []string{output}, RuleID: regenRule, ExplicitDeps: manifestInputs}}, g.Edges...)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
