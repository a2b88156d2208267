// schema-generator writes the JSON schema of the assetbuild project config to
// schema/assetbuild.schema.json for editors and CI validation.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/grovetools/assetbuild/pkg/config"
)

func main() {
	out := flag.String("out", filepath.Join("schema", "assetbuild.schema.json"), "output file")
	flag.Parse()

	data, err := config.SchemaJSON()
	if err != nil {
		log.Fatalf("Failed to generate schema: %v", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		log.Fatalf("Failed to write schema file: %v", err)
	}
	log.Printf("Successfully generated config schema at %s", *out)
}
