// Command featurea inspects artifact manifests and runs containers built
// from them.
package main

func main() {
	Execute()
}
