package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/filter"
)

// filterFlags binds a FilterSet to command flags.
type filterFlags struct {
	view         string
	from, to     string
	versions     []string
	categories   []string
	agents       []string
	statuses     []string
	requirements []string
	flags        []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.view, "view", "", "dataset namespace (tickets, support_threads, detailed_stats)")
	fs.StringVar(&f.from, "from", "", "range start, RFC 3339")
	fs.StringVar(&f.to, "to", "", "range end, RFC 3339")
	fs.StringSliceVar(&f.versions, "version", nil, "version filter (repeatable)")
	fs.StringSliceVar(&f.categories, "category", nil, "category filter (repeatable)")
	fs.StringSliceVar(&f.agents, "agent", nil, "agent filter (repeatable)")
	fs.StringSliceVar(&f.statuses, "status", nil, "status filter (repeatable)")
	fs.StringSliceVar(&f.requirements, "requirement", nil, "requirement filter (repeatable)")
	fs.StringSliceVar(&f.flags, "flag", nil, "boolean filter set to true (repeatable)")
}

// filterSet validates the flags and builds the FilterSet.
func (f *filterFlags) filterSet() (filter.FilterSet, error) {
	values := url.Values{}
	if f.from != "" {
		values.Set("from", f.from)
	}
	if f.to != "" {
		values.Set("to", f.to)
	}
	values["versions"] = f.versions
	values["categories"] = f.categories
	values["agents"] = f.agents
	values["statuses"] = f.statuses
	values["requirements"] = f.requirements
	for _, name := range f.flags {
		values.Set("flag."+name, "1")
	}

	return parseFilters(f.view, values)
}

// parseFilters builds a validated FilterSet for namespace from query values.
func parseFilters(namespace string, values url.Values) (filter.FilterSet, error) {
	if namespace == "" {
		return filter.FilterSet{}, fmt.Errorf("view is required")
	}
	fs, err := filter.FromValues(namespace, values)
	if err != nil {
		return filter.FilterSet{}, err
	}
	if err := fs.Validate(); err != nil {
		return filter.FilterSet{}, err
	}
	return fs, nil
}
