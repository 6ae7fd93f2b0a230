package main

import "github.com/Moitr/stardew-qq-wikibot/cmd"

func main() {
	cmd.Execute()
}
