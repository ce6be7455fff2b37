/*
Package credentials answers a worker's credentials_needed message by reading
a plain KEY=VALUE .env file from a single operator-controlled directory
(Config HARNESS_CREDENTIALS_DIR, default DefaultDir), never by storing
secrets in the harness's own database. Get tries a context-scoped file
first ("<service>-<context>.env"), then falls back to "<service>.env".
*/
package credentials
