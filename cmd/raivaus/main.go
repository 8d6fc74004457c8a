// Raivaus - dependency-aware AWS environment teardown.
package main

func main() {
	Execute()
}
