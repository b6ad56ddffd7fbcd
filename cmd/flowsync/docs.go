package main

//go:generate swag init -g cmd/flowsync/main.go -o docs

// @title           Smart Money Flow API
// @version         0.1.0
// @description     Solana smart-money netflow merged with DEX market data, bucketed by timeframe.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
