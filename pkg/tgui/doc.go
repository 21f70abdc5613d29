// Package tgui holds small helpers for Telegram HTML replies: escaping,
// inline formatting and a line-oriented message builder.
package tgui
