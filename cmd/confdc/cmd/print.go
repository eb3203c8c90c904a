package cmd

import (
	"fmt"
	"os"

	"github.com/beevik/etree"
)

// printElement writes elem's children to stdout as indented XML, the way
// the <data> payload of a get/get-config reply is meant to be inspected
// from a terminal.
func printElement(elem *etree.Element) {
	doc := etree.NewDocument()
	doc.Indent(2)
	for _, c := range elem.ChildElements() {
		doc.AddChild(c.Copy())
	}
	if _, err := doc.WriteTo(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
