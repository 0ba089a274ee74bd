// Command artquery browses the Art Institute of Chicago collection through
// the query cache.
package main

func main() {
	Execute()
}
