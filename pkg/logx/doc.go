// Package logx is burgerbot's structured logging layer.
//
// A thin wrapper over zerolog that keeps console lines short (timestamp and
// file:line caller), writes JSON to the optional file sink, and can mirror
// warnings to a Telegram log chat.
package logx
