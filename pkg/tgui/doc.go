// Package tgui contains small ergonomics helpers for building Telegram UI:
// HTML-safe text, a message builder, inline keyboards, and callback data.
package tgui
