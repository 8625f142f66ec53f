// Package commands implements the rewardpilot command tree.
package commands
