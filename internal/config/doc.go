// Package config loads the bridge configuration from a YAML file.
//
// Environment variables in the form ${VAR_NAME} are expanded before
// parsing, so secrets like bot tokens stay out of the file itself:
//
//	backend:
//	  base_url: https://api.mechita.example
//	  token: ${BACKEND_TOKEN}
//	telegram:
//	  enabled: true
//	  token: ${TELEGRAM_BOT_TOKEN}
//	  relay_addr: ":8081"
//	whatsapp:
//	  enabled: true
//	  store_path: whatsapp.db
//	  relay_addr: ":8082"
//
// Duration fields accept Go duration strings ("30s", "5m"). Validate
// enforces that each enabled platform has its credentials and a relay
// address, and that the two relay servers bind distinct addresses.
package config
