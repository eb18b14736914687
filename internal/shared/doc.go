// Package shared holds code used across packages that belongs to none of
// them. The testutil subpackage has log capture and stacked-table fixtures for
// tests.
package shared
