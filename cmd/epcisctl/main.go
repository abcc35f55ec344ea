// Command epcisctl validates a single EPCIS document on disk and prints
// the resulting report to stdout.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hudsci/epcis-engine/internal/epcis"
)

func main() {
	format := flag.String("format", "json", "output format: json or yaml")
	xmlFlag := flag.Bool("xml", false, "force XML parsing regardless of file extension")
	jsonFlag := flag.Bool("json", false, "force JSON parsing regardless of file extension")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: epcisctl [-format json|yaml] [-xml|-json] <document>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading %s: %v\n", path, err)
		os.Exit(1)
	}

	isXML := !strings.EqualFold(filepath.Ext(path), ".json")
	if *xmlFlag {
		isXML = true
	}
	if *jsonFlag {
		isXML = false
	}

	report := epcis.ValidateDocument(content, isXML)

	var out []byte
	switch strings.ToLower(*format) {
	case "yaml":
		out, err = yaml.Marshal(report)
	case "json":
		out, err = json.MarshalIndent(report, "", "  ")
	default:
		fmt.Fprintf(os.Stderr, "unknown format %q: use json or yaml\n", *format)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "encoding report: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(out))

	if !report.Valid {
		os.Exit(1)
	}
}
