//go:build !race

package identity

const defaultPasswordHashCost = 12

func passwordHashCost() int {
	return defaultPasswordHashCost
}
