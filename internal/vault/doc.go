// Package vault provides symmetric encryption for credentials at rest:
// platform stream keys and third-party API keys. Tokens carry their own
// nonce and integrity tag inline, and a masked display form keeps secrets
// out of API responses and logs.
package vault
