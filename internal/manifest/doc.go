// Package manifest reads declarative part manifests written in HCL.
//
// A manifest describes part types without any Go code:
//
//	part "report_printer" {
//	  description = "Prints every section it is given."
//	  export "Report" {}
//	  import "Sections" {
//	    contract     = "Section"
//	    cardinality  = "zero_or_more"
//	    recomposable = true
//	  }
//	}
//
// The resulting definitions carry no factory; they are bound to Go code
// through a part.Site.
package manifest
