package tracker

import (
	"fmt"
	"io"
	"strings"
)

// ExampleGroup demonstrates weighted aggregation and change bubbling.
func ExampleGroup() {
	root := NewGroup("install")
	root.Subscribe(func(c Change) {
		fmt.Printf("%s -> %s\n", c.Name, FormatRatio(c.Completed))
	})

	resolve, _ := root.NewItem("resolve", 4, 1)
	fetch, _ := root.NewStream("fetch", 8, 3)

	_ = resolve.CompleteWork(4)
	_, _ = io.Copy(io.Discard, fetch.Reader(strings.NewReader("abcd")))

	fmt.Println(FormatRatio(root.Completed()))
	// Output:
	// resolve -> 0.25
	// fetch -> 0.625
	// 0.625
}

// ExampleDebug prints the tree for diagnostics.
func ExampleDebug() {
	root := NewGroup("")
	build, _ := root.NewGroup("build", 1)
	compile, _ := build.NewItem("compile", 2, 1)
	_ = compile.CompleteWork(1)
	_, _ = root.NewItem("test", 10, 1)

	fmt.Print(Debug(root))
	// Output:
	// (unnamed): 0.25
	//   build: 0.5
	//     compile: 0.5
	//   test: 0
}
