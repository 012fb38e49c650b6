// Package util provides small generic helpers shared by the engine
package util
