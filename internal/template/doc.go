// Package template provides the bidsmap template schema, parsing, reuse
// expansion and structural validation.
//
// A template is a hierarchical rule table mapping acquisition metadata onto
// output naming entities. It is loaded once, expanded into an arena of
// independent rules and is read-only afterwards.
//
// # Schema Overview
//
//	version: "1"
//	unassigned: extra_data        # optional, reserved "no special meaning" group
//	discard: exclude              # optional, reserved "explicitly discard" group
//	order: [anat, func, exclude]  # optional, defaults to the order of groups
//	shared:
//	  attributes:
//	    mprage: {SeriesDescription: '*mprage*', ImageType: 'ORIGINAL*'}
//	  entities:
//	    t1: {acq: <ProtocolName>, run: <<1>>, suffix: T1w}
//	groups:
//	  anat:
//	    - provenance: /raw/sub-01/ses-01/007/IM0001
//	      attributes:
//	        $ref: mprage
//	        EchoNumbers: 1          # overrides or extends the shared pattern
//	      entities:
//	        $ref: t1
//	        part: ['', mag, phase, 1]
//	  exclude:
//	    - attributes: {}            # catch-all
//	      entities: {suffix: <SeriesDescription>}
//
// # Attribute patterns
//
// Each attribute maps to one of three pattern states:
//
//   - absent (null, empty string, empty list): matches anything, including a
//     missing attribute
//   - a scalar: literal, or a wildcard with '*' and '?'
//   - a list of scalars: matches if any candidate matches
//
// # Entity values
//
// An entity value is empty, text with placeholders or a list of allowed
// values. Text may contain `<attr>` references, one `<<N>>` run counter and
// `<<SourceFilePath>>`. A list may end with an integer selecting one of its
// values.
//
// # Reuse
//
// YAML anchors, aliases and `<<:` merge keys are supported, as are `$ref`
// references into the shared section. In both cases explicit keys replace
// inherited values whole; nested values are never merged. Every rule is a
// separate copy after load.
package template
